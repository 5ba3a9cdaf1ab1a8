package swagger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestSwaggerHandler(t *testing.T) {
	convey.Convey("Given a swagger handler", t, func() {
		ctx := context.Background()
		mux := http.NewServeMux()

		convey.Convey("When registering the swagger handler", func() {
			Register(ctx, mux)

			convey.Convey("Then it should handle /openapi.yaml route", func() {
				req := httptest.NewRequest("GET", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "application/yaml; charset=utf-8")
				convey.So(w.Body.Len(), convey.ShouldEqual, len(OpenAPI))
			})

			convey.Convey("And it should handle /api-docs route", func() {
				req := httptest.NewRequest("GET", "/api-docs", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Header().Get("Content-Type"), convey.ShouldEqual, "text/html; charset=utf-8")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Whodunit API Docs")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "redoc-container")
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "v"+RedocVersion)
			})

			convey.Convey("And it should refuse writes", func() {
				req := httptest.NewRequest("POST", "/openapi.yaml", http.NoBody)
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusMethodNotAllowed)
			})
		})
	})
}

func TestOpenAPIDocument(t *testing.T) {
	convey.Convey("Given the embedded OpenAPI document", t, func() {
		doc, err := Parse()

		convey.Convey("Then it parses", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(doc.OpenAPI, convey.ShouldStartWith, "3.")
			convey.So(doc.Info.Title, convey.ShouldEqual, "Whodunit API")
		})

		convey.Convey("Then every served route is documented", func() {
			routes := []struct{ path, method string }{
				{"/healthz", "get"},
				{"/stats", "get"},
				{"/metrics", "get"},
				{"/templates", "get"},
				{"/templates/{caseId}", "get"},
				{"/templates/{caseId}/evidence", "get"},
				{"/active-cases", "post"},
				{"/active-cases", "get"},
				{"/active-cases/{activeId}", "get"},
				{"/active-cases/{activeId}/culprit", "post"},
				{"/active-cases/{activeId}/fabrication", "post"},
				{"/active-cases/{activeId}/detective", "post"},
				{"/active-cases/{activeId}/case-file", "get"},
				{"/active-cases/{activeId}/guess", "post"},
				{"/active-cases/{activeId}/journal", "get"},
				{"/users", "post"},
				{"/users/{userId}/cases", "get"},
				{"/users/{userId}/rank", "get"},
				{"/users/{userId}/score-log", "get"},
				{"/leaderboard", "get"},
				{"/scoring-policy", "get"},
			}
			for _, r := range routes {
				ops, ok := doc.Paths[r.path]
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(ops, convey.ShouldContainKey, r.method)
			}
			convey.So(len(doc.Paths), convey.ShouldEqual, 20)
		})
	})
}

func TestSwaggerHandlerWithNilMux(t *testing.T) {
	convey.Convey("Given a nil mux", t, func() {
		ctx := context.Background()

		convey.Convey("When registering the swagger handler", func() {
			convey.Convey("Then it should panic", func() {
				convey.So(func() {
					Register(ctx, nil)
				}, convey.ShouldPanic)
			})
		})
	})
}
