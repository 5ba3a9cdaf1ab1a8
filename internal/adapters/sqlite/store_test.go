package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/whodunit/internal/adapters/journal"
	"github.com/okian/whodunit/internal/adapters/seed"
	"github.com/okian/whodunit/internal/adapters/sqlite"
	"github.com/okian/whodunit/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func openSeeded(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "whodunit.db")
	s, err := sqlite.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	doc, err := seed.Default()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Import(context.Background(), doc); err != nil {
		t.Fatalf("import: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestCatalog(t *testing.T) {
	Convey("Given a store loaded with the default seed", t, func() {
		ctx := context.Background()
		s, _ := openSeeded(t)

		Convey("Templates are listed in case id order with their suspects", func() {
			var ids []int64
			for tpl, err := range s.ListTemplates(ctx) {
				So(err, ShouldBeNil)
				So(len(tpl.Suspects), ShouldBeGreaterThan, 0)
				ids = append(ids, tpl.CaseID)
			}
			So(ids, ShouldResemble, []int64{1, 2, 3})
		})

		Convey("The listing can be restarted and stopped early", func() {
			for range 2 {
				n := 0
				for _, err := range s.ListTemplates(ctx) {
					So(err, ShouldBeNil)
					n++
					if n == 2 {
						break
					}
				}
				So(n, ShouldEqual, 2)
			}
		})

		Convey("A template keeps its suspects in seed order", func() {
			tpl, err := s.GetTemplate(ctx, 1)
			So(err, ShouldBeNil)
			So(tpl.Difficulty, ShouldEqual, 5)
			So(tpl.Culprit, ShouldEqual, "용의자 A")
			So(tpl.Suspects[0].Name, ShouldEqual, "용의자 A")
			So(tpl.Suspects[3].Name, ShouldEqual, "용의자 D")
		})

		Convey("An unknown template is not found", func() {
			_, err := s.GetTemplate(ctx, 999)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Evidence is ordered and partitioned", func() {
			items, err := s.GetEvidenceForCase(ctx, 1)
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 5)
			for i, e := range items {
				So(e.EvidenceID, ShouldEqual, int64(i+1))
				So(e.CaseID, ShouldEqual, 1)
				So(e.Valid(), ShouldBeTrue)
			}
			So(items[0].IsTrue, ShouldBeTrue)
			So(items[2].IsFakeCandidate, ShouldBeTrue)
		})

		Convey("Evidence for an unknown case is not found", func() {
			_, err := s.GetEvidenceForCase(ctx, 42)
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("Importing again replaces a case instead of duplicating it", func() {
			doc, err := seed.Parse(strings.NewReader(`
cases:
  - id: 1
    title: Rewritten
    difficulty: 2
    culprit: X
    suspects:
      - name: X
      - name: Y
    evidence:
      - id: 1
        is_true: true
      - id: 9
        is_fake_candidate: true
`))
			So(err, ShouldBeNil)
			So(s.Import(ctx, doc), ShouldBeNil)

			tpl, err := s.GetTemplate(ctx, 1)
			So(err, ShouldBeNil)
			So(tpl.Title, ShouldEqual, "Rewritten")
			So(len(tpl.Suspects), ShouldEqual, 2)
			items, err := s.GetEvidenceForCase(ctx, 1)
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 2)
			So(items[1].EvidenceID, ShouldEqual, 9)

			other, err := s.GetTemplate(ctx, 2)
			So(err, ShouldBeNil)
			So(other.CaseID, ShouldEqual, 2)
		})
	})
}

func TestJournal(t *testing.T) {
	Convey("Given a store", t, func() {
		ctx := context.Background()
		s, path := openSeeded(t)
		at := time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)

		So(s.Append(ctx, model.JournalEntry{ID: "t1", ActiveID: 100, CaseID: 1, Kind: model.JournalTransition, From: model.StatusOpen, To: model.StatusFabricating, UserID: 20, Role: model.RoleCulprit, At: at}), ShouldBeNil)
		So(s.Append(ctx, model.JournalEntry{ID: "s1", ActiveID: 100, CaseID: 1, Kind: model.JournalScore, UserID: 20, Delta: 1, Reason: "culprit_joined", At: at}), ShouldBeNil)
		So(s.Append(ctx, model.JournalEntry{ID: "t2", ActiveID: 101, CaseID: 2, Kind: model.JournalTransition, To: model.StatusOpen, At: at}), ShouldBeNil)

		Convey("Entries read back per case in append order", func() {
			got, err := s.ByActiveCase(ctx, 100)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0].ID, ShouldEqual, "t1")
			So(got[0].From, ShouldEqual, model.StatusOpen)
			So(got[0].To, ShouldEqual, model.StatusFabricating)
			So(got[0].Role, ShouldEqual, model.RoleCulprit)
			So(got[0].At.Equal(at), ShouldBeTrue)
			So(got[1].Delta, ShouldEqual, 1)
			So(got[1].Reason, ShouldEqual, "culprit_joined")

			n, err := s.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
		})

		Convey("A repeated id is a duplicate", func() {
			err := s.Append(ctx, model.JournalEntry{ID: "t1", ActiveID: 100, At: at})
			So(errors.Is(err, journal.ErrDuplicateEntry), ShouldBeTrue)
		})

		Convey("Entries without id or case are rejected", func() {
			So(errors.Is(s.Append(ctx, model.JournalEntry{ActiveID: 1}), journal.ErrInvalidEntry), ShouldBeTrue)
			So(errors.Is(s.Append(ctx, model.JournalEntry{ID: "x"}), journal.ErrInvalidEntry), ShouldBeTrue)
		})

		Convey("Entries survive reopening the file", func() {
			So(s.Close(), ShouldBeNil)
			again, err := sqlite.Open(ctx, path)
			So(err, ShouldBeNil)
			defer again.Close()
			n, err := again.Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 3)
			_, err = again.GetTemplate(ctx, 3)
			So(err, ShouldBeNil)
		})

		Convey("The last active id and the score changes are read back", func() {
			last, err := s.LastActiveID(ctx)
			So(err, ShouldBeNil)
			So(last, ShouldEqual, 101)

			var changes []model.ScoreChange
			for c, err := range s.ScoreChanges(ctx) {
				So(err, ShouldBeNil)
				changes = append(changes, c)
			}
			So(len(changes), ShouldEqual, 1)
			So(changes[0].UserID, ShouldEqual, 20)
			So(changes[0].Delta, ShouldEqual, 1)
			So(changes[0].Reason, ShouldEqual, "culprit_joined")
			So(changes[0].ActiveID, ShouldEqual, 100)
			So(changes[0].At.Equal(at), ShouldBeTrue)
		})

		Convey("Nicknames are upserted and survive reopening the file", func() {
			So(s.SaveNickname(ctx, 20, "Moriarty"), ShouldBeNil)
			So(s.SaveNickname(ctx, 10, "Hudson"), ShouldBeNil)
			So(s.SaveNickname(ctx, 20, "Professor"), ShouldBeNil)
			So(s.Close(), ShouldBeNil)

			again, err := sqlite.Open(ctx, path)
			So(err, ShouldBeNil)
			defer again.Close()
			names, err := again.Nicknames(ctx)
			So(err, ShouldBeNil)
			So(names, ShouldResemble, map[int64]string{10: "Hudson", 20: "Professor"})
		})

		Convey("A closed store is unavailable", func() {
			So(s.Close(), ShouldBeNil)
			So(s.Close(), ShouldBeNil)
			_, err := s.LastActiveID(ctx)
			So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			for _, err := range s.ScoreChanges(ctx) {
				So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			}
			_, err = s.GetTemplate(ctx, 1)
			So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			_, err = s.GetEvidenceForCase(ctx, 1)
			So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			So(errors.Is(s.Append(ctx, model.JournalEntry{ID: "z", ActiveID: 1}), model.ErrUnavailable), ShouldBeTrue)
			for _, err := range s.ListTemplates(ctx) {
				So(errors.Is(err, model.ErrUnavailable), ShouldBeTrue)
			}
		})
	})
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	if _, err := sqlite.Open(context.Background(), "  "); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}
