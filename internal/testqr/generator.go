package testqr

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
)

// Generated value ranges.
const (
	teamsPerAlliance = 3
	maxTeamNumber    = 9999
	maxIntValue      = 20
	listLength       = 4
	minTimeline      = 4
	maxTimeline      = 16
	matchSeconds     = 150
)

// Generator builds QR payloads that decode cleanly against a schema. The
// layout follows the schema's separators, codes and enum tables, so a
// changed schema yields matching codes without touching the generator.
type Generator struct {
	sc  *schema.Schema
	rnd *rand.Rand

	generic    *schema.Section
	objective  *schema.Section
	subjective *schema.Section
}

// NewGenerator creates a generator. The same seed produces the same codes.
func NewGenerator(sc *schema.Schema, seed uint64) *Generator {
	return &Generator{
		sc:         sc,
		rnd:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		generic:    sc.MustSection(schema.SectionGeneric),
		objective:  sc.MustSection(schema.SectionObjective),
		subjective: sc.MustSection(schema.SectionSubjective),
	}
}

// Match generates one objective code per scout id in 1..scouts and one
// subjective code per alliance.
func (g *Generator) Match(number, scouts int) Match {
	teams := g.teams(2 * teamsPerAlliance)
	m := Match{
		Number: number,
		Red:    teams[:teamsPerAlliance:teamsPerAlliance],
		Blue:   teams[teamsPerAlliance:],
	}
	for id := 1; id <= scouts; id++ {
		team := teams[(id-1)%len(teams)]
		m.Objective = append(m.Objective, g.Objective(number, id, team))
	}
	m.Subjective = append(m.Subjective,
		g.Subjective(number, true, m.Red),
		g.Subjective(number, false, m.Blue))
	return m
}

// Objective builds one objective team-in-match code.
func (g *Generator) Objective(match, scoutID int, team string) string {
	fixed := map[string]string{
		"match_number": strconv.Itoa(match),
		"team_number":  team,
		"scout_id":     strconv.Itoa(scoutID),
	}
	var b strings.Builder
	b.WriteString(g.sc.StartCharacter(schema.SectionObjective))
	b.WriteString(g.genericSegment(fixed, scoutID%2 == 0))
	b.WriteString(g.generic.Meta(schema.MetaSectionSeparator))
	b.WriteString(g.section(g.objective, g.objective.Fields, fixed))
	return b.String()
}

// Subjective builds one subjective code rating every team of an alliance.
// List fields go in the alliance segment, the rest in each team's segment.
func (g *Generator) Subjective(match int, red bool, teams []string) string {
	var perTeam, alliance []schema.Field
	for _, f := range g.subjective.Fields {
		if f.IsList() {
			alliance = append(alliance, f)
		} else {
			perTeam = append(perTeam, f)
		}
	}

	segments := make([]string, 0, len(teams))
	for _, team := range teams {
		segments = append(segments, g.section(g.subjective, perTeam, map[string]string{"team_number": team}))
	}

	var b strings.Builder
	b.WriteString(g.sc.StartCharacter(schema.SectionSubjective))
	b.WriteString(g.genericSegment(map[string]string{"match_number": strconv.Itoa(match)}, red))
	b.WriteString(g.generic.Meta(schema.MetaSectionSeparator))
	b.WriteString(strings.Join(segments, g.subjective.Meta(schema.MetaTeamSeparator)))
	if sep := g.subjective.Meta(schema.MetaAllianceSeparator); sep != "" {
		b.WriteString(sep)
		b.WriteString(g.section(g.subjective, alliance, nil))
	}
	return b.String()
}

func (g *Generator) genericSegment(fixed map[string]string, red bool) string {
	values := map[string]string{
		schema.VersionField:     strconv.Itoa(g.sc.Version),
		"serial_number":         fmt.Sprintf("s%06d", g.rnd.IntN(1_000_000)),
		"scout_name":            "Scout" + strconv.Itoa(g.rnd.IntN(100)),
		"alliance_color_is_red": boolToken(red),
	}
	for k, v := range fixed {
		values[k] = v
	}
	return g.section(g.generic, g.generic.Fields, values)
}

// section encodes fields as code+value tokens joined by the section's
// separator. Values in fixed win over generated ones.
func (g *Generator) section(sec *schema.Section, fields []schema.Field, fixed map[string]string) string {
	markers := sec.MetaList(schema.MetaValidityMarkers)
	valid := sec.MetaList(schema.MetaValidMarkerValues)

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		v, ok := fixed[f.Name]
		switch {
		case ok:
		case len(valid) > 0 && slices.Contains(markers, f.Code):
			v = valid[g.rnd.IntN(len(valid))]
		default:
			v = g.value(f)
		}
		tokens = append(tokens, f.Code+v)
	}
	return strings.Join(tokens, sec.Meta(schema.MetaSeparator))
}

func (g *Generator) value(f schema.Field) string {
	switch {
	case f.IsNested():
		return g.timeline()
	case f.IsList():
		parts := make([]string, listLength)
		for i := range parts {
			parts[i] = g.scalar(f.Elem, f.Name, f.Width)
		}
		if f.Width > 0 {
			return strings.Join(parts, "")
		}
		return strings.Join(parts, g.sc.ListSeparator)
	default:
		return g.scalar(f.Type, f.Name, 0)
	}
}

func (g *Generator) scalar(t schema.Type, table string, width int) string {
	switch t {
	case schema.TypeInt:
		if width > 0 {
			return fmt.Sprintf("%0*d", width, g.rnd.IntN(pow10(width)))
		}
		return strconv.Itoa(g.rnd.IntN(maxIntValue))
	case schema.TypeFloat:
		return strconv.FormatFloat(g.rnd.Float64()*maxIntValue, 'f', 1, 64)
	case schema.TypeBool:
		return boolToken(g.rnd.IntN(2) == 0)
	case schema.TypeEnum:
		names := g.sc.EnumNames(table)
		if len(names) == 0 {
			return ""
		}
		code, _ := g.sc.EnumCode(table, names[g.rnd.IntN(len(names))])
		return code
	default:
		return string(rune('A' + g.rnd.IntN(26)))
	}
}

// timeline encodes a sorted run of actions with one phase transition in the
// middle.
func (g *Generator) timeline() string {
	actions := g.sc.EnumNames(schema.EnumActionType)
	actions = slices.DeleteFunc(actions, func(a string) bool { return a == g.sc.PhaseTransition })
	if len(actions) == 0 {
		return ""
	}

	n := minTimeline + g.rnd.IntN(maxTimeline-minTimeline+1)
	times := make([]int, n)
	for i := range times {
		times[i] = g.rnd.IntN(matchSeconds)
	}
	slices.Sort(times)
	slices.Reverse(times) // the match clock counts down

	var b strings.Builder
	for i, t := range times {
		action := actions[g.rnd.IntN(len(actions))]
		if i == n/2 && g.sc.PhaseTransition != "" {
			action = g.sc.PhaseTransition
		}
		b.WriteString(g.timelineEntry(t, action))
	}
	return b.String()
}

func (g *Generator) timelineEntry(t int, action string) string {
	var b strings.Builder
	for _, col := range g.sc.Timeline {
		switch col.Type {
		case schema.TypeEnum:
			code, _ := g.sc.EnumCode(col.Name, action)
			b.WriteString(code)
		default:
			fmt.Fprintf(&b, "%0*d", col.Length, t%pow10(col.Length))
		}
	}
	return b.String()
}

// teams draws n distinct team numbers.
func (g *Generator) teams(n int) []string {
	seen := make(map[int]struct{}, n)
	out := make([]string, 0, n)
	for len(out) < n {
		t := 1 + g.rnd.IntN(maxTeamNumber)
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, strconv.Itoa(t))
	}
	return out
}

func boolToken(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func pow10(n int) int {
	p := 1
	for range n {
		p *= 10
	}
	return p
}

// Kind reports which collection a generated code belongs to.
func (g *Generator) Kind(qr string) model.Kind {
	switch {
	case strings.HasPrefix(qr, g.sc.StartCharacter(schema.SectionObjective)):
		return model.KindObjective
	case strings.HasPrefix(qr, g.sc.StartCharacter(schema.SectionSubjective)):
		return model.KindSubjective
	default:
		return model.KindUnknown
	}
}
