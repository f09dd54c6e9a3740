package assessment

import (
	"testing"

	"github.com/loes-hub/outcome-engine/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Indexing(t *testing.T) {
	snap := NewSnapshot(SnapshotData{
		Assessments: []Assessment{{ID: 1, Weight: 0.4}, {ID: 2, Weight: 0.6}},
		Questions: []Question{
			{ID: 20, AssessmentID: 2, MaxScore: 5, OutcomeIDs: []shared.ID{100}},
			{ID: 10, AssessmentID: 1, MaxScore: 10, OutcomeIDs: []shared.ID{100, 101, 100}},
		},
		Scores: []Score{
			{StudentID: 7, QuestionID: 10, Value: 8},
			{StudentID: 7, QuestionID: 10, Value: 9},
		},
		AssessedStudents: []shared.ID{9, 7, 9},
	})

	qs := snap.QuestionsFor(100)
	require.Len(t, qs, 2)
	assert.Equal(t, shared.ID(10), qs[0].ID)
	assert.Equal(t, shared.ID(20), qs[1].ID)
	assert.Len(t, snap.QuestionsFor(101), 1)
	assert.Empty(t, snap.QuestionsFor(999))

	v, ok := snap.Score(7, 10)
	assert.True(t, ok)
	assert.Equal(t, 9.0, v)

	_, ok = snap.Score(9, 10)
	assert.False(t, ok)

	a, ok := snap.Assessment(2)
	assert.True(t, ok)
	assert.Equal(t, 0.6, a.Weight)

	assert.Equal(t, []shared.ID{7, 9}, snap.AssessedStudents())
	assert.Equal(t, 2, snap.AssessedCount())
}

func TestSnapshot_AssessedStudentsIsACopy(t *testing.T) {
	snap := NewSnapshot(SnapshotData{AssessedStudents: []shared.ID{1, 2}})

	got := snap.AssessedStudents()
	got[0] = 99

	assert.Equal(t, []shared.ID{1, 2}, snap.AssessedStudents())
}

func TestQuestion_Tags(t *testing.T) {
	q := Question{OutcomeIDs: []shared.ID{3, 4}}
	assert.True(t, q.Tags(4))
	assert.False(t, q.Tags(5))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Assessment{Weight: -1}.Validate(), shared.ErrNegativeValue)
	assert.ErrorIs(t, Question{MaxScore: -1}.Validate(), shared.ErrNegativeValue)
	assert.NoError(t, Assessment{Weight: 0}.Validate())
}
