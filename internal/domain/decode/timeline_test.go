package decode

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
)

func TestDecodeTimeline(t *testing.T) {
	d := New(schema.Default())

	Convey("Given a timeline crossing into teleop", t, func() {
		got, err := d.DecodeTimeline("059AD060AO061AE")

		Convey("Then entries at and after to_teleop are in teleop", func() {
			So(err, ShouldBeNil)
			So(got, ShouldResemble, []model.TimelineEntry{
				{Time: 59, ActionType: "score_cube_high", InTeleop: false},
				{Time: 60, ActionType: "to_teleop", InTeleop: true},
				{Time: 61, ActionType: "score_cube_mid", InTeleop: true},
			})
		})
	})

	Convey("Given an empty timeline", t, func() {
		got, err := d.DecodeTimeline("")
		So(err, ShouldBeNil)
		So(got, ShouldNotBeNil)
		So(got, ShouldBeEmpty)
	})

	Convey("Given a timeline with a partial entry", t, func() {
		_, err := d.DecodeTimeline("abcdefg")
		So(errors.Is(err, ErrTimelineLength), ShouldBeTrue)
	})

	Convey("Given a timeline with an unknown action code", t, func() {
		_, err := d.DecodeTimeline("059ZZ")
		So(errors.Is(err, coerce.ErrEnumLookup), ShouldBeTrue)
	})

	Convey("Given a timeline with a bad time", t, func() {
		_, err := d.DecodeTimeline("0x9AD")
		So(errors.Is(err, coerce.ErrTypeCoercion), ShouldBeTrue)
	})
}

func TestTimelineProperties(t *testing.T) {
	s := schema.Default()
	d := New(s)
	actions := s.EnumNames(schema.EnumActionType)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	encode := func(times, picks []int) (string, int) {
		var b strings.Builder
		firstTeleop := -1
		for i := range min(len(times), len(picks)) {
			name := actions[picks[i]%len(actions)]
			code, _ := s.EnumCode(schema.EnumActionType, name)
			fmt.Fprintf(&b, "%03d%s", times[i], code)
			if name == s.PhaseTransition && firstTeleop < 0 {
				firstTeleop = i
			}
		}
		return b.String(), firstTeleop
	}

	properties.Property("one entry per fixed-width chunk", prop.ForAll(
		func(times, picks []int) bool {
			raw, _ := encode(times, picks)
			got, err := d.DecodeTimeline(raw)
			return err == nil && len(got) == len(raw)/s.TimelineWidth()
		},
		gen.SliceOf(gen.IntRange(0, 999)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("in_teleop flips once at the first transition", prop.ForAll(
		func(times, picks []int) bool {
			raw, first := encode(times, picks)
			got, err := d.DecodeTimeline(raw)
			if err != nil {
				return false
			}
			for i, e := range got {
				want := first >= 0 && i >= first
				if e.InTeleop != want {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 999)),
		gen.SliceOf(gen.IntRange(0, 1000)),
	))

	properties.Property("trailing partial entries are rejected", prop.ForAll(
		func(times, picks []int, extra string) bool {
			raw, _ := encode(times, picks)
			cut := len(extra) % s.TimelineWidth()
			if cut == 0 {
				return true
			}
			_, err := d.DecodeTimeline(raw + extra[:cut])
			return errors.Is(err, ErrTimelineLength)
		},
		gen.SliceOf(gen.IntRange(0, 999)),
		gen.SliceOf(gen.IntRange(0, 1000)),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
