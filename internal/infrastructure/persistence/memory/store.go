// Package memory is an in-process implementation of every repository
// interface, loadable from a YAML fixture. The CLI uses it with
// --store memory and application tests use it as a fake.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/loes-hub/outcome-engine/internal/domain/achievement"
	"github.com/loes-hub/outcome-engine/internal/domain/assessment"
	"github.com/loes-hub/outcome-engine/internal/domain/outcome"
	"github.com/loes-hub/outcome-engine/internal/domain/prerequisite"
	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

type pair struct {
	a shared.ID
	b shared.ID
}

// Store holds the whole data model in maps guarded by one RWMutex.
// Returned entities are copies.
type Store struct {
	mu sync.RWMutex

	programs        map[shared.ID]outcome.Program
	courses         map[shared.ID]outcome.Course
	outcomes        map[shared.ID]outcome.Outcome
	programOutcomes map[shared.ID]outcome.ProgramOutcome
	mappings        map[pair]outcome.Mapping // (outcome, program outcome)

	assessments map[shared.ID]assessment.Assessment
	questions   map[shared.ID]assessment.Question
	students    map[shared.ID]assessment.Student
	scores      map[pair]float64 // (student, question)

	results map[pair]achievement.Result // (student, outcome)

	rules      map[shared.ID]prerequisite.Rule
	nextRuleID shared.ID
}

// New creates an empty store.
func New() *Store {
	return &Store{
		programs:        make(map[shared.ID]outcome.Program),
		courses:         make(map[shared.ID]outcome.Course),
		outcomes:        make(map[shared.ID]outcome.Outcome),
		programOutcomes: make(map[shared.ID]outcome.ProgramOutcome),
		mappings:        make(map[pair]outcome.Mapping),
		assessments:     make(map[shared.ID]assessment.Assessment),
		questions:       make(map[shared.ID]assessment.Question),
		students:        make(map[shared.ID]assessment.Student),
		scores:          make(map[pair]float64),
		results:         make(map[pair]achievement.Result),
		rules:           make(map[shared.ID]prerequisite.Rule),
		nextRuleID:      1,
	}
}

var (
	_ outcome.Repository        = (*Store)(nil)
	_ outcome.MappingRepository = (*Store)(nil)
	_ assessment.Repository     = (*Store)(nil)
	_ achievement.Repository    = (*Store)(nil)
	_ prerequisite.Repository   = (*Store)(nil)
	_ Seeder                    = (*Store)(nil)
)

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) AddProgram(p outcome.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs[p.ID] = p
}

func (s *Store) AddCourse(c outcome.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

func (s *Store) AddOutcome(o outcome.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.ID] = o
}

func (s *Store) AddProgramOutcome(p outcome.ProgramOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.programOutcomes[p.ID] = p
}

func (s *Store) AddAssessment(a assessment.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.ID] = a
}

func (s *Store) AddQuestion(q assessment.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q.OutcomeIDs = append([]shared.ID(nil), q.OutcomeIDs...)
	s.questions[q.ID] = q
}

func (s *Store) AddStudent(st assessment.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

// AddScore sets a score, replacing any previous one for the pair.
func (s *Store) AddScore(sc assessment.Score) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[pair{sc.StudentID, sc.QuestionID}] = sc.Value
}

// Seed* implement Seeder for fixture loading.

func (s *Store) SeedProgram(_ context.Context, p outcome.Program) error {
	s.AddProgram(p)
	return nil
}

func (s *Store) SeedCourse(_ context.Context, c outcome.Course) error {
	s.AddCourse(c)
	return nil
}

func (s *Store) SeedOutcome(_ context.Context, o outcome.Outcome) error {
	s.AddOutcome(o)
	return nil
}

func (s *Store) SeedProgramOutcome(_ context.Context, p outcome.ProgramOutcome) error {
	s.AddProgramOutcome(p)
	return nil
}

func (s *Store) SeedAssessment(_ context.Context, a assessment.Assessment) error {
	s.AddAssessment(a)
	return nil
}

func (s *Store) SeedQuestion(_ context.Context, q assessment.Question) error {
	s.AddQuestion(q)
	return nil
}

func (s *Store) SeedStudent(_ context.Context, st assessment.Student) error {
	s.AddStudent(st)
	return nil
}

func (s *Store) SeedScore(_ context.Context, sc assessment.Score) error {
	s.AddScore(sc)
	return nil
}

func (s *Store) SeedRule(ctx context.Context, r *prerequisite.Rule) error {
	return s.SaveRule(ctx, r)
}

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM (outcome.Repository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) GetProgram(_ context.Context, id shared.ID) (*outcome.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, shared.ErrProgramNotFound
	}
	return &p, nil
}

func (s *Store) ListPrograms(_ context.Context) ([]*outcome.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*outcome.Program, 0, len(s.programs))
	for _, p := range s.programs {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCourse(_ context.Context, id shared.ID) (*outcome.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.courses[id]
	if !ok {
		return nil, shared.ErrCourseNotFound
	}
	return &c, nil
}

func (s *Store) ListCourses(_ context.Context, programID shared.ID) ([]*outcome.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coursesWhere(func(c outcome.Course) bool { return c.ProgramID == programID }), nil
}

func (s *Store) ListCoursesWithOutcomes(_ context.Context) ([]*outcome.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	has := shared.NewIDSet()
	for _, o := range s.outcomes {
		has.Add(o.CourseID)
	}
	return s.coursesWhere(func(c outcome.Course) bool { return has.Has(c.ID) }), nil
}

func (s *Store) coursesWhere(keep func(outcome.Course) bool) []*outcome.Course {
	out := make([]*outcome.Course, 0)
	for _, c := range s.courses {
		if keep(c) {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) GetOutcome(_ context.Context, id shared.ID) (*outcome.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.outcomes[id]
	if !ok {
		return nil, shared.ErrOutcomeNotFound
	}
	return &o, nil
}

func (s *Store) ListOutcomes(_ context.Context, courseID shared.ID) ([]*outcome.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*outcome.Outcome, 0)
	for _, o := range s.outcomes {
		if o.CourseID == courseID {
			o := o
			out = append(out, &o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProgramOutcome(_ context.Context, id shared.ID) (*outcome.ProgramOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programOutcomes[id]
	if !ok {
		return nil, shared.ErrProgramOutcomeNotFound
	}
	return &p, nil
}

func (s *Store) ListProgramOutcomes(_ context.Context, programID shared.ID) ([]*outcome.ProgramOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*outcome.ProgramOutcome, 0)
	for _, p := range s.programOutcomes {
		if p.ProgramID == programID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAPPINGS (outcome.MappingRepository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) ListByProgramOutcome(_ context.Context, programOutcomeID shared.ID) ([]*outcome.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mappingsWhere(func(m outcome.Mapping) bool { return m.ProgramOutcomeID == programOutcomeID }), nil
}

func (s *Store) ListByCourse(_ context.Context, courseID shared.ID) ([]*outcome.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mappingsWhere(func(m outcome.Mapping) bool {
		o, ok := s.outcomes[m.OutcomeID]
		return ok && o.CourseID == courseID
	}), nil
}

func (s *Store) mappingsWhere(keep func(outcome.Mapping) bool) []*outcome.Mapping {
	out := make([]*outcome.Mapping, 0)
	for _, m := range s.mappings {
		if keep(m) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OutcomeID != out[j].OutcomeID {
			return out[i].OutcomeID < out[j].OutcomeID
		}
		return out[i].ProgramOutcomeID < out[j].ProgramOutcomeID
	})
	return out
}

func (s *Store) Upsert(_ context.Context, m *outcome.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[pair{m.OutcomeID, m.ProgramOutcomeID}] = *m
	return nil
}

func (s *Store) Delete(_ context.Context, outcomeID, programOutcomeID shared.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := pair{outcomeID, programOutcomeID}
	if _, ok := s.mappings[k]; !ok {
		return shared.ErrMappingNotFound
	}
	delete(s.mappings, k)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GRADED WORK (assessment.Repository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) LoadSnapshot(_ context.Context, courseID shared.ID, outcomeIDs []shared.ID) (*assessment.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := shared.NewIDSet(outcomeIDs...)
	var data assessment.SnapshotData

	tagged := shared.NewIDSet()
	owners := shared.NewIDSet()
	for _, q := range s.questions {
		for _, oid := range q.OutcomeIDs {
			if wanted.Has(oid) {
				q.OutcomeIDs = append([]shared.ID(nil), q.OutcomeIDs...)
				data.Questions = append(data.Questions, q)
				tagged.Add(q.ID)
				owners.Add(q.AssessmentID)
				break
			}
		}
	}
	for id := range owners {
		if a, ok := s.assessments[id]; ok {
			data.Assessments = append(data.Assessments, a)
		}
	}

	courseQuestions := shared.NewIDSet()
	for _, q := range s.questions {
		if a, ok := s.assessments[q.AssessmentID]; ok && a.CourseID == courseID {
			courseQuestions.Add(q.ID)
		}
	}

	for k, v := range s.scores {
		if tagged.Has(k.b) {
			data.Scores = append(data.Scores, assessment.Score{StudentID: k.a, QuestionID: k.b, Value: v})
		}
		if courseQuestions.Has(k.b) {
			data.AssessedStudents = append(data.AssessedStudents, k.a)
		}
	}

	return assessment.NewSnapshot(data), nil
}

func (s *Store) GetStudent(_ context.Context, id shared.ID) (*assessment.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return &st, nil
}

func (s *Store) ListStudents(_ context.Context, cohort shared.Cohort) ([]*assessment.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*assessment.Student, 0, len(s.students))
	for _, st := range s.students {
		if cohort.IsEmpty() || st.Cohort == cohort {
			st := st
			out = append(out, &st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESULTS (achievement.Repository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) UpsertResults(_ context.Context, results []*achievement.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		s.results[pair{r.StudentID, r.OutcomeID}] = *r
	}
	return nil
}

func (s *Store) ListStudentResults(_ context.Context, studentID shared.ID, outcomeIDs []shared.ID) ([]*achievement.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*achievement.Result, 0, len(outcomeIDs))
	for _, oid := range dedupe(outcomeIDs) {
		if r, ok := s.results[pair{studentID, oid}]; ok {
			out = append(out, &r)
		}
	}
	return out, nil
}

// ResultCount returns the number of stored results.
func (s *Store) ResultCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}

// ══════════════════════════════════════════════════════════════════════════════
// RULES (prerequisite.Repository)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) GetRule(_ context.Context, id shared.ID) (*prerequisite.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, shared.ErrRuleNotFound
	}
	return &r, nil
}

func (s *Store) ListRules(_ context.Context, courseID shared.ID) ([]*prerequisite.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*prerequisite.Rule, 0)
	for _, r := range s.rules {
		if r.CourseID == courseID {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SaveRule(_ context.Context, r *prerequisite.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextRuleID
	}
	if r.ID >= s.nextRuleID {
		s.nextRuleID = r.ID + 1
	}
	s.rules[r.ID] = *r
	return nil
}

func dedupe(ids []shared.ID) []shared.ID {
	seen := shared.NewIDSet()
	out := make([]shared.ID, 0, len(ids))
	for _, id := range ids {
		if !seen.Has(id) {
			seen.Add(id)
			out = append(out, id)
		}
	}
	return out
}
