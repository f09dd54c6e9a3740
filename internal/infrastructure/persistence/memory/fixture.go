package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// Fixture is the YAML layout of a seeded store.
type Fixture struct {
	Programs []struct {
		ID                shared.ID `yaml:"id"`
		Code              string    `yaml:"code"`
		Name              string    `yaml:"name"`
		ExpectedThreshold float64   `yaml:"expected_threshold"`
	} `yaml:"programs"`

	Courses []struct {
		ID          shared.ID `yaml:"id"`
		ProgramID   shared.ID `yaml:"program_id"`
		Code        string    `yaml:"code"`
		Title       string    `yaml:"title"`
		Credits     int       `yaml:"credits"`
		VersionYear int       `yaml:"version_year"`
	} `yaml:"courses"`

	Outcomes []struct {
		ID         shared.ID `yaml:"id"`
		CourseID   shared.ID `yaml:"course_id"`
		Code       string    `yaml:"code"`
		Verb       string    `yaml:"verb"`
		Text       string    `yaml:"text"`
		BloomLevel string    `yaml:"bloom_level"`
		Threshold  *float64  `yaml:"threshold"`
	} `yaml:"outcomes"`

	ProgramOutcomes []struct {
		ID          shared.ID `yaml:"id"`
		ProgramID   shared.ID `yaml:"program_id"`
		Code        string    `yaml:"code"`
		Description string    `yaml:"description"`
	} `yaml:"program_outcomes"`

	Mappings []struct {
		OutcomeID        shared.ID `yaml:"outcome_id"`
		ProgramOutcomeID shared.ID `yaml:"program_outcome_id"`
		Tier             string    `yaml:"tier"`
		Source           string    `yaml:"source"`
	} `yaml:"mappings"`

	Assessments []struct {
		ID       shared.ID `yaml:"id"`
		CourseID shared.ID `yaml:"course_id"`
		Code     string    `yaml:"code"`
		Title    string    `yaml:"title"`
		Weight   *float64  `yaml:"weight"`
	} `yaml:"assessments"`

	Questions []struct {
		ID           shared.ID   `yaml:"id"`
		AssessmentID shared.ID   `yaml:"assessment_id"`
		Text         string      `yaml:"text"`
		MaxScore     float64     `yaml:"max_score"`
		OutcomeIDs   []shared.ID `yaml:"outcome_ids"`
	} `yaml:"questions"`

	Students []struct {
		ID            shared.ID `yaml:"id"`
		StudentNumber string    `yaml:"student_number"`
		Name          string    `yaml:"name"`
		Cohort        string    `yaml:"cohort"`
	} `yaml:"students"`

	Scores []struct {
		StudentID  shared.ID `yaml:"student_id"`
		QuestionID shared.ID `yaml:"question_id"`
		Value      float64   `yaml:"value"`
	} `yaml:"scores"`

	Rules []struct {
		ID               shared.ID      `yaml:"id"`
		CourseID         shared.ID      `yaml:"course_id"`
		PrereqCourseID   shared.ID      `yaml:"prereq_course_id"`
		Type             string         `yaml:"type"`
		ConditionType    string         `yaml:"condition_type"`
		ConditionPayload map[string]any `yaml:"condition_payload"`
		EffectiveYear    int            `yaml:"effective_year"`
	} `yaml:"rules"`
}

// Seeder receives fixture entities in dependency order. Both the memory
// store and the sqlite store implement it.
type Seeder interface {
	SeedProgram(ctx context.Context, p outcome.Program) error
	SeedCourse(ctx context.Context, c outcome.Course) error
	SeedOutcome(ctx context.Context, o outcome.Outcome) error
	SeedProgramOutcome(ctx context.Context, p outcome.ProgramOutcome) error
	Upsert(ctx context.Context, m *outcome.Mapping) error
	SeedAssessment(ctx context.Context, a assessment.Assessment) error
	SeedQuestion(ctx context.Context, q assessment.Question) error
	SeedStudent(ctx context.Context, st assessment.Student) error
	SeedScore(ctx context.Context, sc assessment.Score) error
	SeedRule(ctx context.Context, r *prerequisite.Rule) error
}

// ApplyOptions are the defaults used for values a fixture leaves out.
type ApplyOptions struct {
	// DefaultThreshold is the threshold of outcomes without one.
	DefaultThreshold float64
}

// DefaultApplyOptions returns the built-in defaults.
func DefaultApplyOptions() ApplyOptions {
	return ApplyOptions{DefaultThreshold: outcome.DefaultThreshold}
}

func pickOptions(opts []ApplyOptions) ApplyOptions {
	if len(opts) > 0 {
		return opts[0]
	}
	return DefaultApplyOptions()
}

// DecodeFixture parses a YAML fixture. An empty document is an empty fixture.
func DecodeFixture(r io.Reader) (*Fixture, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &fx, nil
}

// ReadFixtureFile parses the YAML fixture at path.
func ReadFixtureFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return DecodeFixture(f)
}

// LoadFixtureFile reads a YAML fixture from path into a new store.
func LoadFixtureFile(path string, opts ...ApplyOptions) (*Store, error) {
	fx, err := ReadFixtureFile(path)
	if err != nil {
		return nil, err
	}
	return fx.Build(opts...)
}

// LoadFixture decodes a YAML fixture into a new store.
func LoadFixture(r io.Reader, opts ...ApplyOptions) (*Store, error) {
	fx, err := DecodeFixture(r)
	if err != nil {
		return nil, err
	}
	return fx.Build(opts...)
}

// Build creates a memory store from the fixture.
func (fx *Fixture) Build(opts ...ApplyOptions) (*Store, error) {
	s := New()
	if err := fx.Apply(context.Background(), s, opts...); err != nil {
		return nil, err
	}
	return s, nil
}

// Apply validates every entity the way the database adapters validate rows
// and hands it to dst. Without opts the built-in defaults are used.
func (fx *Fixture) Apply(ctx context.Context, dst Seeder, opts ...ApplyOptions) error {
	o := pickOptions(opts)

	for _, p := range fx.Programs {
		threshold := p.ExpectedThreshold
		if threshold == 0 {
			threshold = outcome.DefaultThreshold
		}
		if err := dst.SeedProgram(ctx, outcome.Program{ID: p.ID, Code: p.Code, Name: p.Name, ExpectedThreshold: threshold}); err != nil {
			return fmt.Errorf("program %s: %w", p.ID, err)
		}
	}

	for _, c := range fx.Courses {
		if err := dst.SeedCourse(ctx, outcome.Course{
			ID:          c.ID,
			ProgramID:   c.ProgramID,
			Code:        c.Code,
			Title:       c.Title,
			Credits:     c.Credits,
			VersionYear: c.VersionYear,
		}); err != nil {
			return fmt.Errorf("course %s: %w", c.ID, err)
		}
	}

	for _, clo := range fx.Outcomes {
		threshold := o.DefaultThreshold
		if clo.Threshold != nil {
			threshold = *clo.Threshold
		}
		entity, err := outcome.NewOutcome(outcome.NewOutcomeParams{
			ID:         clo.ID,
			CourseID:   clo.CourseID,
			Code:       clo.Code,
			Verb:       clo.Verb,
			Text:       clo.Text,
			LevelLabel: clo.BloomLevel,
			Threshold:  &threshold,
		})
		if err == nil {
			err = dst.SeedOutcome(ctx, *entity)
		}
		if err != nil {
			return fmt.Errorf("outcome %s: %w", clo.ID, err)
		}
	}

	for _, p := range fx.ProgramOutcomes {
		if err := dst.SeedProgramOutcome(ctx, outcome.ProgramOutcome{ID: p.ID, ProgramID: p.ProgramID, Code: p.Code, Description: p.Description}); err != nil {
			return fmt.Errorf("program outcome %s: %w", p.ID, err)
		}
	}

	for _, m := range fx.Mappings {
		tier, ok := outcome.ParseTier(m.Tier)
		if !ok {
			return fmt.Errorf("mapping %s/%s: %w", m.OutcomeID, m.ProgramOutcomeID, shared.ErrInvalidTier)
		}
		source := outcome.MappingSource(m.Source)
		if source == "" {
			source = outcome.SourceManual
		}
		if err := dst.Upsert(ctx, &outcome.Mapping{
			OutcomeID:        m.OutcomeID,
			ProgramOutcomeID: m.ProgramOutcomeID,
			Tier:             tier,
			Source:           source,
		}); err != nil {
			return fmt.Errorf("mapping %s/%s: %w", m.OutcomeID, m.ProgramOutcomeID, err)
		}
	}

	for _, a := range fx.Assessments {
		weight := 1.0
		if a.Weight != nil {
			weight = *a.Weight
		}
		entity := assessment.Assessment{ID: a.ID, CourseID: a.CourseID, Code: a.Code, Title: a.Title, Weight: weight}
		err := entity.Validate()
		if err == nil {
			err = dst.SeedAssessment(ctx, entity)
		}
		if err != nil {
			return fmt.Errorf("assessment %s: %w", a.ID, err)
		}
	}

	for _, q := range fx.Questions {
		entity := assessment.Question{ID: q.ID, AssessmentID: q.AssessmentID, Text: q.Text, MaxScore: q.MaxScore, OutcomeIDs: q.OutcomeIDs}
		err := entity.Validate()
		if err == nil {
			err = dst.SeedQuestion(ctx, entity)
		}
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
	}

	for _, st := range fx.Students {
		if err := dst.SeedStudent(ctx, assessment.Student{ID: st.ID, StudentNumber: st.StudentNumber, Name: st.Name, Cohort: shared.Cohort(st.Cohort)}); err != nil {
			return fmt.Errorf("student %s: %w", st.ID, err)
		}
	}

	for _, sc := range fx.Scores {
		if err := dst.SeedScore(ctx, assessment.Score{StudentID: sc.StudentID, QuestionID: sc.QuestionID, Value: sc.Value}); err != nil {
			return fmt.Errorf("score %s/%s: %w", sc.StudentID, sc.QuestionID, err)
		}
	}

	for _, r := range fx.Rules {
		var payload []byte
		if r.ConditionPayload != nil {
			data, err := json.Marshal(r.ConditionPayload)
			if err != nil {
				return fmt.Errorf("rule %s payload: %w", r.ID, err)
			}
			payload = data
		}
		cond, err := prerequisite.DecodeCondition(r.ConditionType, payload)
		if err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}

		ruleType := prerequisite.Type(r.Type)
		if ruleType == "" {
			ruleType = prerequisite.TypeStrict
		}
		rule := &prerequisite.Rule{
			ID:             r.ID,
			CourseID:       r.CourseID,
			PrereqCourseID: r.PrereqCourseID,
			Type:           ruleType,
			Condition:      cond,
			EffectiveYear:  r.EffectiveYear,
		}
		if err := dst.SeedRule(ctx, rule); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	return nil
}
