package simulate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/whodunit/internal/adapters/http/api"
	service "github.com/okian/whodunit/internal/app"
	"github.com/okian/whodunit/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

func newServer(t *testing.T, opts ...service.Option) *httptest.Server {
	t.Helper()
	svc := service.New(opts...)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	mux := http.NewServeMux()
	api.NewServer(svc, svc, 100).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(context.Background())
	})
	return srv
}

func testConfig(url string) *Config {
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Users = 8
	cfg.Games = 12
	cfg.Contenders = 4
	cfg.Workers = 4
	cfg.Timeout = 5 * time.Second
	return cfg
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		srv := newServer(t)
		ctx := context.Background()

		Convey("When a simulation plays against it", func() {
			cfg := testConfig(srv.URL)
			cfg.Report = filepath.Join(t.TempDir(), "out", "report.json")
			report, err := Run(ctx, cfg)

			Convey("Then every case resolves with one winner per race", func() {
				So(err, ShouldBeNil)
				So(report.Mismatches, ShouldBeEmpty)
				So(report.Resolved, ShouldEqual, cfg.Games)
				So(report.Solved+report.Unsolved, ShouldEqual, cfg.Games)
				So(report.CulpritConflicts, ShouldEqual, cfg.Games*(cfg.Contenders-1))
				So(report.DetectiveConflicts, ShouldEqual, cfg.Games*(cfg.Contenders-1))
			})

			Convey("Then the report is written", func() {
				data, err := os.ReadFile(cfg.Report)
				So(err, ShouldBeNil)
				var got Report
				So(json.Unmarshal(data, &got), ShouldBeNil)
				So(got.RunID, ShouldEqual, report.RunID)
				So(got.Games, ShouldEqual, cfg.Games)
			})

			Convey("And a second run on the same server still adds up", func() {
				again, err := Run(ctx, testConfig(srv.URL))
				So(err, ShouldBeNil)
				So(again.RunID, ShouldNotEqual, report.RunID)
				So(again.Mismatches, ShouldBeEmpty)
			})
		})

		Convey("When two runs share the same players", func() {
			cfg := testConfig(srv.URL)
			cfg.UserBase = 500
			_, err := Run(ctx, cfg)
			So(err, ShouldBeNil)

			Convey("Then scores are checked against the baseline", func() {
				report, err := Run(ctx, cfg)
				So(err, ShouldBeNil)
				So(report.Mismatches, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a service with a custom scoring policy", t, func() {
		srv := newServer(t, service.WithScoring(map[string]int64{
			"culprit_joined":      5,
			"detective_assigned":  2,
			"detective_incorrect": -1,
			"culprit_caught":      -3,
		}))

		Convey("Then the expected scores follow the published policy", func() {
			report, err := Run(context.Background(), testConfig(srv.URL))
			So(err, ShouldBeNil)
			So(report.Mismatches, ShouldBeEmpty)
		})
	})
}

func TestRunFailures(t *testing.T) {
	Convey("Given a simulation config", t, func() {
		cfg := DefaultConfig()

		Convey("Then too few users for the races are refused", func() {
			cfg.Users = cfg.Contenders + 1
			_, err := Run(context.Background(), cfg)
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("Then non-positive settings are refused", func() {
			for _, mutate := range []func(*Config){
				func(c *Config) { c.BaseURL = "" },
				func(c *Config) { c.Games = 0 },
				func(c *Config) { c.Contenders = 0 },
				func(c *Config) { c.Workers = 0 },
				func(c *Config) { c.Timeout = 0 },
				func(c *Config) { c.UserBase = -1 },
			} {
				c := *cfg
				mutate(&c)
				So(errors.Is(c.Validate(), ErrInvalidConfig), ShouldBeTrue)
			}
		})

		Convey("Then an unreachable service fails the health check", func() {
			srv := httptest.NewServer(http.NotFoundHandler())
			srv.Close()
			cfg.BaseURL = srv.URL
			cfg.Timeout = time.Second
			_, err := Run(context.Background(), cfg)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "health check")
		})
	})
}

func TestRace(t *testing.T) {
	Convey("Given contenders for one slot", t, func() {
		ctx := context.Background()

		Convey("Then a single winner and conflicts are counted", func() {
			winner, lost, err := race(ctx, []int64{1, 2, 3}, func(_ context.Context, user int64) error {
				if user == 2 {
					return nil
				}
				return &StatusError{Status: http.StatusConflict, Code: "conflict"}
			})
			So(err, ShouldBeNil)
			So(winner, ShouldEqual, 2)
			So(lost, ShouldEqual, 2)
		})

		Convey("Then two winners fail verification", func() {
			_, _, err := race(ctx, []int64{1, 2}, func(context.Context, int64) error { return nil })
			So(errors.Is(err, ErrVerification), ShouldBeTrue)
		})

		Convey("Then any other error aborts the race", func() {
			_, _, err := race(ctx, []int64{1, 2}, func(context.Context, int64) error {
				return &StatusError{Status: http.StatusForbidden, Code: "forbidden"}
			})
			var serr *StatusError
			So(errors.As(err, &serr), ShouldBeTrue)
			So(serr.Status, ShouldEqual, http.StatusForbidden)
		})
	})
}

func TestSeats(t *testing.T) {
	Convey("Given a table of five players", t, func() {
		tbl := &table{cfg: &Config{Contenders: 3}, users: []int64{10, 11, 12, 13, 14}}

		Convey("Then the client never contends", func() {
			So(tbl.seats(0, 0), ShouldResemble, []int64{11, 12, 13})
			So(tbl.seats(3, 0), ShouldResemble, []int64{14, 10, 11})
		})

		Convey("Then the excluded culprit is skipped", func() {
			So(tbl.seats(0, 12), ShouldResemble, []int64{11, 13, 14})
		})
	})
}
