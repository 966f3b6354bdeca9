package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateScoreExpr_ComputesWeightedComposite(t *testing.T) {
	env := map[string]interface{}{"identity": 0.9, "palette": 0.8}
	score, err := EvaluateScoreExpr("identity*0.4 + palette*0.25", env)
	require.NoError(t, err)
	assert.InDelta(t, 0.56, score, 1e-9)
}

func TestEvaluateScoreExpr_InvalidProgramIsValidationError(t *testing.T) {
	_, err := EvaluateScoreExpr("identity +", map[string]interface{}{"identity": 0.9})
	assert.Error(t, err)
}

func TestEvaluateBoolExpr_EvaluatesRejectRatePredicate(t *testing.T) {
	stop, err := EvaluateBoolExpr("reject_rate > 0.30", map[string]interface{}{"reject_rate": 0.5})
	require.NoError(t, err)
	assert.True(t, stop)

	stop, err = EvaluateBoolExpr("reject_rate > 0.30", map[string]interface{}{"reject_rate": 0.1})
	require.NoError(t, err)
	assert.False(t, stop)
}

func TestEvaluateBoolExpr_InvalidProgramIsValidationError(t *testing.T) {
	_, err := EvaluateBoolExpr("reject_rate >", map[string]interface{}{"reject_rate": 0.1})
	assert.Error(t, err)
}
