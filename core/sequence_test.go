package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSequenceDefinition_Validate(t *testing.T) {
	valid := SequenceDefinition{
		Name:  "discovery",
		Steps: []CapabilityType{TypeDataAnalysis, TypeDocumentProcessing},
	}
	assert.NoError(t, valid.Validate())

	empty := SequenceDefinition{Name: "empty"}
	err := empty.Validate()
	assert.ErrorIs(t, err, ErrEmptySequence)

	unnamed := SequenceDefinition{Steps: []CapabilityType{TypeDataAnalysis}}
	assert.Error(t, unnamed.Validate())

	bogus := SequenceDefinition{Name: "bogus", Steps: []CapabilityType{"not-a-type"}}
	assert.Error(t, bogus.Validate())
}

func TestFailedStep(t *testing.T) {
	res := FailedStep(TypeApproval, 42*time.Millisecond, "no active capability handle for type %s", TypeApproval)

	assert.False(t, res.Success)
	assert.Equal(t, TypeApproval, res.Type)
	assert.Equal(t, 42*time.Millisecond, res.Elapsed)
	assert.Equal(t, "no active capability handle for type approval", res.Error)
	assert.Nil(t, res.Payload)
}

func TestCapabilityType_Valid(t *testing.T) {
	for _, ct := range CapabilityTypes() {
		assert.True(t, ct.Valid(), "%s", ct)
	}
	assert.False(t, CapabilityType("nope").Valid())
}

func TestFirstActiveHandle(t *testing.T) {
	index := map[CapabilityType][]CapabilityHandle{
		TypeDataAnalysis: {
			{ID: "w1", Name: "Old Analyzer", Active: false, Type: TypeDataAnalysis},
			{ID: "w2", Name: "Analyzer", Active: true, Type: TypeDataAnalysis},
		},
		TypeApproval: {
			{ID: "w3", Name: "Approvals", Active: false, Type: TypeApproval},
		},
	}

	h, ok := FirstActiveHandle(index, TypeDataAnalysis)
	assert.True(t, ok)
	assert.Equal(t, "w2", h.ID)

	_, ok = FirstActiveHandle(index, TypeApproval)
	assert.False(t, ok, "inactive handles must not be selected")

	_, ok = FirstActiveHandle(index, TypeReportGeneration)
	assert.False(t, ok)
}
