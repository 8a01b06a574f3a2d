package contracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageNext(t *testing.T) {
	tests := []struct {
		from Stage
		want Stage
	}{
		{StageIdle, StageIngesting},
		{StageIngesting, StageNormalizing},
		{StageNormalizing, StageAggregating},
		{StageAggregating, StageAligning},
		{StageAligning, StageQualityScanning},
		{StageQualityScanning, StageComplete},
	}

	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.Next())
		})
	}
}

func TestRunStagesOrder(t *testing.T) {
	stages := RunStages()
	assert.Len(t, stages, 5)

	// Each stage must be the predecessor of the next one.
	for i := 0; i < len(stages)-1; i++ {
		assert.Equal(t, stages[i+1], stages[i].Next(),
			"stage order must follow data dependency")
	}
}

func TestStageIsTerminal(t *testing.T) {
	assert.True(t, StageComplete.IsTerminal())
	assert.True(t, StageFailed.IsTerminal())
	assert.False(t, StageIngesting.IsTerminal())
	assert.False(t, StageIdle.IsTerminal())
}

func TestIsValidStage(t *testing.T) {
	assert.True(t, IsValidStage("INGESTING"))
	assert.True(t, IsValidStage("COMPLETE"))
	assert.False(t, IsValidStage("ingesting"))
	assert.False(t, IsValidStage("S0"))
}
