package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/whodunit/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.ActiveIDStart, convey.ShouldEqual, 100)
			convey.So(cfg.JournalQueueSize, convey.ShouldEqual, 4096)
			convey.So(cfg.JournalWorkers, convey.ShouldEqual, 2)
			convey.So(cfg.JournalDedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.ShutdownTimeout, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Scoring, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with one bad setting each", t, func() {
		ctx := context.Background()
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"unknown store", func(c *config.Config) { c.Store = "postgres" }},
			{"sqlite no path", func(c *config.Config) { c.Store, c.SQLitePath = config.StoreSQLite, "" }},
			{"zero id start", func(c *config.Config) { c.ActiveIDStart = 0 }},
			{"zero limit", func(c *config.Config) { c.MaxLeaderboardLimit = 0 }},
			{"negative queue", func(c *config.Config) { c.JournalQueueSize = -1 }},
			{"no workers", func(c *config.Config) { c.JournalWorkers = 0 }},
			{"no dedupe", func(c *config.Config) { c.JournalDedupeSize = 0 }},
			{"no timeout", func(c *config.Config) { c.ShutdownTimeout = 0 }},
			{"bad log format", func(c *config.Config) { c.LogFormat = "xml" }},
			{"unknown score key", func(c *config.Config) { c.Scoring["police_bribed"] = 5 }},
		}
		for _, tc := range cases {
			convey.Convey("Then "+tc.name+" is rejected", func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}

		convey.Convey("Then known scoring overrides are accepted", func() {
			cfg := config.New()
			cfg.Scoring["detective_correct"] = 10
			cfg.Store = config.StoreSQLite
			convey.So(cfg.Validate(ctx), convey.ShouldBeNil)
		})
	})
}
