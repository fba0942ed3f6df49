package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/model"
)

type storeFactory struct {
	name string
	open func(t *testing.T) Store
}

func factories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(_ *testing.T) Store {
			return NewMemStore(context.Background(), WithMetricsUpdateInterval(10*time.Millisecond))
		}},
		{name: "sqlite", open: func(t *testing.T) Store {
			s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "scout.db"),
				WithMetricsUpdateInterval(10*time.Millisecond))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return s
		}},
	}
}

func TestStores(t *testing.T) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			testStore(t, f.open)
		})
	}
}

func testStore(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	Convey("Given an empty store", t, func() {
		s := open(t)
		defer s.Close()

		n, err := s.Count(ctx, CollectionRawQR)
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 0)

		Convey("When inserting unkeyed documents", func() {
			So(s.Insert(ctx, CollectionObjectiveTIM,
				model.Record{"match_number": 1, "scout_id": 4, "team_number": "1678"},
				model.Record{"match_number": 2, "scout_id": 5, "team_number": "254"},
				model.Record{"match_number": 1, "scout_id": 6, "team_number": "971"},
			), ShouldBeNil)

			Convey("Then they are counted and found in insertion order", func() {
				n, err := s.Count(ctx, CollectionObjectiveTIM)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 3)

				got, err := s.Find(ctx, CollectionObjectiveTIM, Filter{"match_number": 1})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
				So(got[0]["team_number"], ShouldEqual, "1678")
				So(got[1]["team_number"], ShouldEqual, "971")

				all, err := s.Find(ctx, CollectionObjectiveTIM, nil)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 3)
			})

			Convey("Then numeric filters ignore the Go type", func() {
				got, err := s.Find(ctx, CollectionObjectiveTIM, Filter{"match_number": 2.0})
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
			})

			Convey("Then Since pages through new documents", func() {
				first, cursor, err := s.Since(ctx, CollectionObjectiveTIM, 0)
				So(err, ShouldBeNil)
				So(len(first), ShouldEqual, 3)
				So(cursor, ShouldBeGreaterThan, 0)

				none, same, err := s.Since(ctx, CollectionObjectiveTIM, cursor)
				So(err, ShouldBeNil)
				So(none, ShouldBeEmpty)
				So(same, ShouldEqual, cursor)

				So(s.Insert(ctx, CollectionObjectiveTIM, model.Record{"match_number": 3}), ShouldBeNil)
				next, after, err := s.Since(ctx, CollectionObjectiveTIM, cursor)
				So(err, ShouldBeNil)
				So(len(next), ShouldEqual, 1)
				So(after, ShouldBeGreaterThan, cursor)
			})
		})

		Convey("When putting a keyed document twice", func() {
			So(s.Put(ctx, CollectionRawQR, "a", model.Record{"qr_id": "a", "blocklisted": false}), ShouldBeNil)
			_, cursor, err := s.Since(ctx, CollectionRawQR, 0)
			So(err, ShouldBeNil)

			So(s.Put(ctx, CollectionRawQR, "a", model.Record{
				"qr_id":       "a",
				"blocklisted": true,
				"override":    map[string]any{"team_number": "1678"},
			}), ShouldBeNil)

			Convey("Then the latest version wins and keeps its place", func() {
				got, err := s.Get(ctx, CollectionRawQR, "a")
				So(err, ShouldBeNil)
				So(got["blocklisted"], ShouldEqual, true)
				So(got["override"], ShouldResemble, map[string]any{"team_number": "1678"})

				n, err := s.Count(ctx, CollectionRawQR)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)

				later, _, err := s.Since(ctx, CollectionRawQR, cursor)
				So(err, ShouldBeNil)
				So(later, ShouldBeEmpty)
			})
		})

		Convey("When a returned document is modified", func() {
			So(s.Put(ctx, CollectionObjectivePit, "1678", model.Record{"team_number": "1678", "weight": 120.5}), ShouldBeNil)
			got, err := s.Get(ctx, CollectionObjectivePit, "1678")
			So(err, ShouldBeNil)
			got["weight"] = 1.0

			Convey("Then the stored copy is unchanged", func() {
				again, err := s.Get(ctx, CollectionObjectivePit, "1678")
				So(err, ShouldBeNil)
				So(again["weight"], ShouldEqual, 120.5)
			})
		})

		Convey("Then lookups report missing keys and bad collections", func() {
			_, err := s.Get(ctx, CollectionObjectivePit, "9999")
			So(errors.Is(err, ErrNotFound), ShouldBeTrue)

			So(errors.Is(s.Insert(ctx, "nope", model.Record{}), ErrUnknownCollection), ShouldBeTrue)
			So(errors.Is(s.Put(ctx, CollectionRawQR, "", model.Record{}), ErrEmptyKey), ShouldBeTrue)
		})

		Convey("When applying a group of writes", func() {
			err := s.Apply(ctx,
				Write{Collection: CollectionObjectiveTIM, Docs: []model.Record{{"scout_id": 1}, {"scout_id": 2}}},
				Write{Collection: CollectionPasses, Key: "cursor", Docs: []model.Record{{"cursor": 7}}},
			)

			Convey("Then every write is visible", func() {
				So(err, ShouldBeNil)
				n, err := s.Count(ctx, CollectionObjectiveTIM)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				got, err := s.Get(ctx, CollectionPasses, "cursor")
				So(err, ShouldBeNil)
				So(got["cursor"], ShouldEqual, 7)
			})
		})

		Convey("When one write of a group is invalid", func() {
			err := s.Apply(ctx,
				Write{Collection: CollectionObjectiveTIM, Docs: []model.Record{{"scout_id": 1}}},
				Write{Collection: "nope", Docs: []model.Record{{"scout_id": 2}}},
			)
			So(errors.Is(err, ErrUnknownCollection), ShouldBeTrue)

			err = s.Apply(ctx,
				Write{Collection: CollectionSubjectiveTIM, Docs: []model.Record{{"team_number": "254"}}},
				Write{Collection: CollectionPasses, Key: "cursor"},
			)
			So(errors.Is(err, ErrInvalidWrite), ShouldBeTrue)

			Convey("Then nothing is written", func() {
				n, err := s.Count(ctx, CollectionObjectiveTIM)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
				n, err = s.Count(ctx, CollectionSubjectiveTIM)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})
		})

		Convey("When writers run concurrently", func() {
			var wg sync.WaitGroup
			for i := range 8 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_ = s.Insert(ctx, CollectionSubjectiveTIM, model.Record{"team_number": i})
				}(i)
			}
			wg.Wait()

			Convey("Then no insert is lost", func() {
				n, err := s.Count(ctx, CollectionSubjectiveTIM)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 8)
			})
		})
	})
}

func TestMemStoreClose(t *testing.T) {
	Convey("Given a closed memory store", t, func() {
		s := NewMemStore(context.Background())
		So(s.Close(), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then operations fail with ErrClosed", func() {
			_, err := s.Count(context.Background(), CollectionRawQR)
			So(errors.Is(err, ErrClosed), ShouldBeTrue)
		})
	})
}

func TestWithCollections(t *testing.T) {
	Convey("Given a store limited to raw QRs", t, func() {
		ctx := context.Background()
		s := NewMemStore(ctx, WithCollections(CollectionRawQR))
		defer s.Close()

		Convey("Then other collections are rejected", func() {
			So(s.Insert(ctx, CollectionRawQR, model.Record{"qr_id": "a"}), ShouldBeNil)
			err := s.Insert(ctx, CollectionSubjectiveTIM, model.Record{"qr_id": "a"})
			So(errors.Is(err, ErrUnknownCollection), ShouldBeTrue)
		})
	})
}

func TestSQLiteStoreReopen(t *testing.T) {
	Convey("Given documents written to a sqlite file", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "nested", "scout.db")

		s, err := NewSQLiteStore(ctx, path)
		So(err, ShouldBeNil)
		So(s.Put(ctx, CollectionObjectivePit, "3448", model.Record{"team_number": "3448", "drivetrain_motors": 4}), ShouldBeNil)
		So(s.Close(), ShouldBeNil)

		Convey("Then a reopened store sees them with integers intact", func() {
			s2, err := NewSQLiteStore(ctx, path)
			So(err, ShouldBeNil)
			defer s2.Close()

			got, err := s2.Get(ctx, CollectionObjectivePit, "3448")
			So(err, ShouldBeNil)
			So(got["drivetrain_motors"], ShouldEqual, 4)
			So(s2.Path(), ShouldEqual, path)
		})
	})
}

func TestFilterMatch(t *testing.T) {
	Convey("Given a filter", t, func() {
		f := Filter{"match_number": 3, "alliance_color_is_red": true}

		So(f.Match(model.Record{"match_number": 3.0, "alliance_color_is_red": true}), ShouldBeTrue)
		So(f.Match(model.Record{"match_number": 3}), ShouldBeFalse)
		So(f.Match(model.Record{"match_number": "3", "alliance_color_is_red": true}), ShouldBeFalse)
		So(Filter(nil).Match(model.Record{"x": 1}), ShouldBeTrue)
	})
}
