package assessment

import (
	"sort"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

type scoreKey struct {
	student  shared.ID
	question shared.ID
}

// Snapshot is an immutable, pre-indexed view of the questions, assessment
// weights and scores needed to evaluate a batch of (student, outcome) pairs.
// It is fetched once per batch and is safe for concurrent readers.
type Snapshot struct {
	assessments map[shared.ID]Assessment
	byOutcome   map[shared.ID][]Question
	scores      map[scoreKey]float64
	assessed    []shared.ID
}

// SnapshotData is the raw material of a Snapshot.
type SnapshotData struct {
	// Assessments owning the questions below.
	Assessments []Assessment

	// Questions tagged with the outcomes of interest, from any assessment.
	Questions []Question

	// Scores on those questions.
	Scores []Score

	// AssessedStudents are the students with at least one score on any
	// question of any assessment of the course under evaluation.
	AssessedStudents []shared.ID
}

// NewSnapshot indexes data. Duplicate scores for the same pair keep the last one.
func NewSnapshot(data SnapshotData) *Snapshot {
	s := &Snapshot{
		assessments: make(map[shared.ID]Assessment, len(data.Assessments)),
		byOutcome:   make(map[shared.ID][]Question),
		scores:      make(map[scoreKey]float64, len(data.Scores)),
	}

	for _, a := range data.Assessments {
		s.assessments[a.ID] = a
	}

	for _, q := range data.Questions {
		seen := make(map[shared.ID]struct{}, len(q.OutcomeIDs))
		for _, oid := range q.OutcomeIDs {
			if _, dup := seen[oid]; dup {
				continue
			}
			seen[oid] = struct{}{}
			s.byOutcome[oid] = append(s.byOutcome[oid], q)
		}
	}
	for oid := range s.byOutcome {
		qs := s.byOutcome[oid]
		sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
	}

	for _, sc := range data.Scores {
		s.scores[scoreKey{student: sc.StudentID, question: sc.QuestionID}] = sc.Value
	}

	set := make(map[shared.ID]struct{}, len(data.AssessedStudents))
	for _, id := range data.AssessedStudents {
		if _, dup := set[id]; dup {
			continue
		}
		set[id] = struct{}{}
		s.assessed = append(s.assessed, id)
	}
	sort.Slice(s.assessed, func(i, j int) bool { return s.assessed[i] < s.assessed[j] })

	return s
}

// QuestionsFor returns the questions tagged with the outcome, ordered by ID.
func (s *Snapshot) QuestionsFor(outcomeID shared.ID) []Question {
	return s.byOutcome[outcomeID]
}

// Assessment returns the assessment by ID.
func (s *Snapshot) Assessment(id shared.ID) (Assessment, bool) {
	a, ok := s.assessments[id]
	return a, ok
}

// Score returns the student's score on the question.
func (s *Snapshot) Score(studentID, questionID shared.ID) (float64, bool) {
	v, ok := s.scores[scoreKey{student: studentID, question: questionID}]
	return v, ok
}

// AssessedStudents returns a copy of the assessed population, ordered by ID.
func (s *Snapshot) AssessedStudents() []shared.ID {
	out := make([]shared.ID, len(s.assessed))
	copy(out, s.assessed)
	return out
}

// AssessedCount returns the size of the assessed population.
func (s *Snapshot) AssessedCount() int {
	return len(s.assessed)
}
