package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
)

const (
	objectiveQR  = "+A5$Bs1234$C34$D1230$Ev1.3$FName$GTRUE%Z1678$Y14$X4$W060AD061AE$VN$UN$TN"
	subjectiveQR = "*A5$Bs1234$C34$D1230$Ev1.3$FName$GFALSE%" +
		"A1678$B1$C2$DFALSE$FTRUE$G196#A254$B2$C2$DFALSE$FFALSE$G373#A1323$B3$C3$DTRUE$FFALSE$G746^E1100"

	defaultSchemaFile = "../../internal/domain/schema/default_schema.yml"
	pitSchemaFile     = "../../internal/domain/schema/pit_schema.yml"
)

func init() {
	if err := logger.Init(logger.WithWriter(&bytes.Buffer{})); err != nil {
		panic(err)
	}
}

func execute(stdin string, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestDecodeCmd(t *testing.T) {
	Convey("Given a dump of scanned codes on stdin", t, func() {
		input := strings.Join([]string{objectiveQR, "", subjectiveQR, strings.Replace(objectiveQR, "+A5", "+A4", 1)}, "\n")

		Convey("When decoding with the embedded schema", func() {
			out, err := execute(input, "decode")
			So(err, ShouldBeNil)

			var got decodeOutput
			So(json.Unmarshal([]byte(out), &got), ShouldBeNil)

			Convey("Then records are printed by kind", func() {
				So(got.Objective, ShouldHaveLength, 1)
				So(got.Objective[0]["team_number"], ShouldEqual, "1678")
				So(got.Subjective, ShouldHaveLength, 3)
			})

			Convey("Then the bad line is reported with its line number", func() {
				So(got.Failures, ShouldHaveLength, 1)
				So(got.Failures[0].Line, ShouldEqual, 4)
				So(got.Failures[0].Reason, ShouldEqual, "schema_version")
			})
		})

		Convey("When the schema file is given explicitly", func() {
			out, err := execute(objectiveQR, "decode", "--schema", defaultSchemaFile)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"scout_id": 14`)
		})

		Convey("When the schema file is missing", func() {
			_, err := execute(objectiveQR, "decode", "--schema", filepath.Join(t.TempDir(), "none.yml"))
			So(errors.Is(err, schema.ErrSchemaLoad), ShouldBeTrue)
		})
	})
}

func TestAuditCmd(t *testing.T) {
	Convey("Given decoded objective records", t, func() {
		records := `{"records": [
			{"match_number": 3, "scout_id": 1, "team_number": "254"},
			{"match_number": 3, "scout_id": 1, "team_number": "1678"},
			{"match_number": 4, "scout_id": 1, "team_number": "254"},
			{"match_number": 4, "scout_id": 2, "team_number": "1678"}
		]}`

		Convey("When auditing scouts one and two", func() {
			out, err := execute(records, "audit", "--min", "1", "--max", "2")
			So(err, ShouldBeNil)

			var got auditOutput
			So(json.Unmarshal([]byte(out), &got), ShouldBeNil)

			Convey("Then match three has a duplicate and a gap", func() {
				So(got.Records, ShouldEqual, 4)
				So(got.Warnings, ShouldResemble, []audit.Warning{
					{Kind: audit.DuplicateObserver, MatchNumber: 3, ScoutID: 1, Count: 2},
					{Kind: audit.MissingObserver, MatchNumber: 3, ScoutID: 2},
				})
			})
		})

		Convey("When the match is ignored", func() {
			path := filepath.Join(t.TempDir(), "ignore.yml")
			So(os.WriteFile(path, []byte("- match_number: 3\n"), 0o600), ShouldBeNil)

			out, err := execute(records, "audit", "--min", "1", "--max", "2", "--ignore", path, "--strict")

			Convey("Then nothing is reported and strict mode passes", func() {
				So(err, ShouldBeNil)
				So(out, ShouldContainSubstring, `"warnings": []`)
			})
		})

		Convey("When strict mode sees warnings", func() {
			_, err := execute(records, "audit", "--min", "1", "--max", "2", "--strict")
			So(errors.Is(err, ErrWarnings), ShouldBeTrue)
		})

		Convey("When the input is a bare array from a file", func() {
			path := filepath.Join(t.TempDir(), "tims.json")
			So(os.WriteFile(path, []byte(`[{"match_number": 1, "scout_id": 1}]`), 0o600), ShouldBeNil)
			out, err := execute("", "audit", "--min", "1", "--max", "1", path)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"records": 1`)
		})

		Convey("When the range is inverted", func() {
			_, err := execute(records, "audit", "--min", "3", "--max", "2")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSchemaCmd(t *testing.T) {
	Convey("Given schema files", t, func() {
		Convey("Then the match schema validates", func() {
			out, err := execute("", "schema", defaultSchemaFile)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, `"version": 5`)
		})

		Convey("Then the pit schema validates with --pit", func() {
			out, err := execute("", "schema", "--pit", pitSchemaFile)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "obj_pit")
		})

		Convey("Then a broken file fails", func() {
			path := filepath.Join(t.TempDir(), "bad.yml")
			So(os.WriteFile(path, []byte("generic_data: [nope"), 0o600), ShouldBeNil)
			_, err := execute("", "schema", path)
			So(err, ShouldNotBeNil)
		})

		Convey("Then a missing argument is a usage error", func() {
			_, err := execute("", "schema")
			So(err, ShouldNotBeNil)
		})
	})
}
