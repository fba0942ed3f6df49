package decode

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
)

const (
	objectiveQR  = "+A5$Bs1234$C34$D1230$Ev1.3$FName$GTRUE%Z1678$Y14$X4$W060AD061AE$VN$UN$TN"
	subjectiveQR = "*A5$Bs1234$C34$D1230$Ev1.3$FName$GFALSE%" +
		"A1678$B1$C2$DFALSE$FTRUE$G196#A254$B2$C2$DFALSE$FFALSE$G373#A1323$B3$C3$DTRUE$FFALSE$G746^E1100"
)

const timestampSchema = `
schema_file:
  version: 5
generic_data:
  _separator: "$"
  _section_separator: "%"
  schema_version: [A, int]
  serial_number: [B, str]
  match_number: [C, int]
  timestamp: [D, float]
  scout_name: [E, str]
objective_tim:
  _start_character: "+"
  _separator: "$"
  team_number: [Z, str]
  pieces: [P, list, int]
  route: [R, list, dict]
timeline:
  time: {length: 3, type: int, position: 0}
  action_type: {length: 2, type: Enum, position: 1}
action_type:
  to_teleop: AO
`

func TestKindOf(t *testing.T) {
	d := New(schema.Default())

	Convey("Given payloads with different start characters", t, func() {
		k, err := d.KindOf(objectiveQR)
		So(err, ShouldBeNil)
		So(k, ShouldEqual, model.KindObjective)

		k, err = d.KindOf(subjectiveQR)
		So(err, ShouldBeNil)
		So(k, ShouldEqual, model.KindSubjective)

		_, err = d.KindOf("?A5")
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)

		_, err = d.KindOf("")
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)
	})
}

func TestDecodeObjective(t *testing.T) {
	d := New(schema.Default())
	ctx := context.Background()

	Convey("Given an objective QR", t, func() {
		kind, recs, err := d.DecodeQR(ctx, objectiveQR)

		Convey("Then one complete record is produced", func() {
			So(err, ShouldBeNil)
			So(kind, ShouldEqual, model.KindObjective)
			So(recs, ShouldHaveLength, 1)
			So(recs[0], ShouldResemble, model.Record{
				"schema_version":                  5,
				"serial_number":                   "s1234",
				"match_number":                    34,
				"timestamp":                       1230,
				"match_collection_version_number": "v1.3",
				"scout_name":                      "Name",
				"alliance_color_is_red":           true,
				"team_number":                     "1678",
				"scout_id":                        14,
				"start_position":                  "4",
				"timeline": []model.TimelineEntry{
					{Time: 60, ActionType: "score_cube_high"},
					{Time: 61, ActionType: "score_cube_mid"},
				},
				"auto_charge_level":   "N",
				"tele_charge_level":   "N",
				"preloaded_gamepiece": "N",
			})
		})
	})

	Convey("Given an objective QR from another schema version", t, func() {
		_, _, err := d.DecodeQR(ctx, strings.Replace(objectiveQR, "+A5", "+A4", 1))

		Convey("Then a version mismatch is reported", func() {
			So(errors.Is(err, ErrSchemaVersionMismatch), ShouldBeTrue)
			var vm *VersionMismatchError
			So(errors.As(err, &vm), ShouldBeTrue)
			So(vm.Got, ShouldEqual, 4)
			So(vm.Want, ShouldEqual, 5)
		})
	})

	Convey("Given an objective QR missing a field", t, func() {
		_, _, err := d.DecodeQR(ctx, strings.Replace(objectiveQR, "$TN", "", 1))

		Convey("Then the record is incomplete", func() {
			So(errors.Is(err, ErrIncompleteRecord), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "preloaded_gamepiece")
		})
	})

	Convey("Given an objective QR without the section separator", t, func() {
		_, _, err := d.DecodeQR(ctx, strings.Replace(objectiveQR, "%", "$", 1))
		So(err, ShouldNotBeNil)
	})

	Convey("Given an objective QR with a bad value", t, func() {
		_, _, err := d.DecodeQR(ctx, strings.Replace(objectiveQR, "$Y14", "$Yxx", 1))
		So(errors.Is(err, coerce.ErrTypeCoercion), ShouldBeTrue)

		_, _, err = d.DecodeQR(ctx, strings.Replace(objectiveQR, "$TN", "$TN$QN", 1))
		So(errors.Is(err, schema.ErrUnknownCode), ShouldBeTrue)

		_, _, err = d.DecodeQR(ctx, strings.Replace(objectiveQR, "$TN", "$TN$", 1))
		So(errors.Is(err, ErrMalformedToken), ShouldBeTrue)
	})
}

func TestDecodeSubjective(t *testing.T) {
	d := New(schema.Default())
	ctx := context.Background()

	Convey("Given a subjective QR for three teams", t, func() {
		kind, recs, err := d.DecodeQR(ctx, subjectiveQR)

		Convey("Then each team gets its own record with the alliance fields", func() {
			So(err, ShouldBeNil)
			So(kind, ShouldEqual, model.KindSubjective)
			So(recs, ShouldHaveLength, 3)

			So(recs[0]["team_number"], ShouldEqual, "1678")
			So(recs[0]["quickness_score"], ShouldEqual, 1)
			So(recs[0]["field_awareness_score"], ShouldEqual, 2)
			So(recs[0]["played_defense"], ShouldEqual, true)
			So(recs[0]["defense_timestamp"], ShouldEqual, 196)
			So(recs[1]["team_number"], ShouldEqual, "254")
			So(recs[2]["team_number"], ShouldEqual, "1323")
			So(recs[2]["was_tippy"], ShouldEqual, true)

			for _, r := range recs {
				So(r["match_number"], ShouldEqual, 34)
				So(r["alliance_color_is_red"], ShouldEqual, false)
				So(r["auto_pieces_start_position"], ShouldResemble, []any{1, 1, 0, 0})
				So(len(r), ShouldEqual, 14)
			}
		})

		Convey("Then records do not share list storage", func() {
			recs[0]["auto_pieces_start_position"].([]any)[0] = 9
			So(recs[1]["auto_pieces_start_position"], ShouldResemble, []any{1, 1, 0, 0})
		})
	})

	Convey("Given a team rated outside 1 to 3", t, func() {
		qr := strings.Replace(subjectiveQR, "#A254$B2$C2", "#A254$B4$C1", 1)
		_, recs, err := d.DecodeQR(ctx, qr)

		Convey("Then only that team is skipped", func() {
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 2)
			So(recs[0]["team_number"], ShouldEqual, "1678")
			So(recs[1]["team_number"], ShouldEqual, "1323")
		})
	})

	Convey("Given a subjective QR with two teams", t, func() {
		qr := strings.Replace(subjectiveQR, "#A1323$B3$C3$DTRUE$FFALSE$G746", "", 1)
		_, _, err := d.DecodeQR(ctx, qr)
		So(errors.Is(err, ErrEntityCount), ShouldBeTrue)
	})

	Convey("Given a subjective QR from another schema version", t, func() {
		old := strings.Replace(subjectiveQR, "*A5", "*A4", 1)

		Convey("Then the version is reported before the alliance segment is read", func() {
			_, _, err := d.DecodeQR(ctx, strings.Replace(old, "^E1100", "^Exx", 1))
			So(errors.Is(err, ErrSchemaVersionMismatch), ShouldBeTrue)
		})

		Convey("Then the version is reported before teams are counted", func() {
			qr := strings.Replace(old, "#A1323$B3$C3$DTRUE$FFALSE$G746", "", 1)
			_, _, err := d.DecodeQR(ctx, qr)
			So(errors.Is(err, ErrSchemaVersionMismatch), ShouldBeTrue)
		})
	})

	Convey("Given a subjective QR without the alliance segment", t, func() {
		qr := strings.TrimSuffix(subjectiveQR, "^E1100")
		_, _, err := d.DecodeQR(ctx, qr)
		So(errors.Is(err, ErrIncompleteRecord), ShouldBeTrue)
	})

	Convey("Given a subjective QR with a team missing a field", t, func() {
		qr := strings.Replace(subjectiveQR, "$G373", "", 1)
		_, _, err := d.DecodeQR(ctx, qr)
		So(errors.Is(err, ErrIncompleteRecord), ShouldBeTrue)
		So(err.Error(), ShouldContainSubstring, "defense_timestamp")
	})
}

func TestDecodeGenericCustomSchema(t *testing.T) {
	s, err := schema.Parse([]byte(timestampSchema))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	d := New(s)

	Convey("Given a generic segment with a float field", t, func() {
		rec, err := d.DecodeGeneric("A5$B1234$C10$D0.5$Ename")

		Convey("Then every field is typed", func() {
			So(err, ShouldBeNil)
			So(rec, ShouldResemble, model.Record{
				"schema_version": 5,
				"serial_number":  "1234",
				"match_number":   10,
				"timestamp":      0.5,
				"scout_name":     "name",
			})
		})
	})

	Convey("Given a version token that is not a number", t, func() {
		_, err := d.DecodeGeneric("Ax$B1234")
		So(errors.Is(err, coerce.ErrTypeCoercion), ShouldBeTrue)
	})

	Convey("Given a mismatched version after other fields", t, func() {
		_, err := d.DecodeGeneric("B1234$Dnot-a-float$A6")

		Convey("Then the version is reported before the bad float", func() {
			So(errors.Is(err, ErrSchemaVersionMismatch), ShouldBeTrue)
		})
	})

	Convey("Given list fields", t, func() {
		rec, err := d.DecodeSection(schema.SectionObjective, []string{"Z1678", "P1,2,3"})
		So(err, ShouldBeNil)
		So(rec["pieces"], ShouldResemble, []any{1, 2, 3})

		_, err = d.DecodeSection(schema.SectionObjective, []string{"Rabc"})
		So(errors.Is(err, ErrUnsupportedNestedType), ShouldBeTrue)

		_, err = d.DecodeSection(schema.SectionSubjective, []string{"A1"})
		So(errors.Is(err, schema.ErrUnknownSection), ShouldBeTrue)
	})

	Convey("Given a subjective payload for a schema without that kind", t, func() {
		_, err := d.KindOf("*A5")
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)
		_, err = d.Decode(context.Background(), model.KindSubjective, "A5%A1")
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)
	})
}
