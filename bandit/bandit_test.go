package bandit_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raskolnikoff/noesisnoema/bandit"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

func testArms() []bandit.Arm {
	return []bandit.Arm{
		{ID: "good", Params: retrieval.Params{TopK: 5, MMRLambda: 0.7, MinScore: 0}},
		{ID: "bad", Params: retrieval.Params{TopK: 5, MMRLambda: 0.3, MinScore: 0}},
	}
}

func TestClusterID_EmptyQueryIsDefault(t *testing.T) {
	assert.Equal(t, "default", bandit.ClusterID(""))
	assert.Equal(t, "default", bandit.ClusterID("   "))
}

func TestClusterID_StableForSameNormalizedQuery(t *testing.T) {
	a := bandit.ClusterID("Swift Programming")
	b := bandit.ClusterID("  swift   programming  ")
	assert.Equal(t, a, b)
}

func TestBandit_PosteriorMatchesRewardCounts(t *testing.T) {
	b := bandit.New(testArms(), bandit.NewFixedSequence(0.5), time.Minute)

	qaID := uuid.New()
	cluster, arm := b.ChooseParams("swift programming", &qaID)
	require.Equal(t, "good", arm.ID) // tie-break: first arm wins under fixed 0.5 stream

	nUp, nDown := 3, 2
	for i := 0; i < nUp; i++ {
		qa := uuid.New()
		_, chosen := b.ChooseParams("swift programming", &qa)
		require.Equal(t, arm.ID, chosen.ID)
		b.Reward(qa, true)
	}
	for i := 0; i < nDown; i++ {
		qa := uuid.New()
		_, chosen := b.ChooseParams("swift programming", &qa)
		require.Equal(t, arm.ID, chosen.ID)
		b.Reward(qa, false)
	}

	post := b.Posterior(cluster, arm.ID)
	assert.Equal(t, float64(1+nUp), post.Alpha)
	assert.Equal(t, float64(1+nDown), post.Beta)
}

func TestBandit_ThompsonSamplingIsDeterministicWithFixedStream(t *testing.T) {
	seq := []float64{0.2, 0.9, 0.4, 0.7, 0.6, 0.1}

	b1 := bandit.New(testArms(), bandit.NewFixedSequence(seq...), time.Minute)
	b2 := bandit.New(testArms(), bandit.NewFixedSequence(seq...), time.Minute)

	_, arm1 := b1.ChooseParams("japan history", nil)
	_, arm2 := b2.ChooseParams("japan history", nil)

	assert.Equal(t, arm1.ID, arm2.ID)
}

func TestBandit_RewardIsNoOpWithoutPriorSelection(t *testing.T) {
	b := bandit.New(testArms(), bandit.DefaultUniformSource, time.Minute)
	assert.NotPanics(t, func() { b.Reward(uuid.New(), true) })
}

func TestBandit_ExpireStaleRemovesOldSelections(t *testing.T) {
	b := bandit.New(testArms(), bandit.DefaultUniformSource, time.Millisecond)
	qaID := uuid.New()
	b.ChooseParams("swift", &qaID)

	removed := b.ExpireStale(time.Now().Add(time.Hour))
	assert.Equal(t, 1, removed)

	post := b.Posterior(bandit.ClusterID("swift"), "good")
	b.Reward(qaID, true)
	assert.Equal(t, post, b.Posterior(bandit.ClusterID("swift"), "good"))
}

// TestBandit_ConvergesToHigherRewardArm runs the spec's literal
// convergence scenario: arm "good" pays out with p=0.7, arm "bad" with
// p=0.3, over 300 rounds. The bandit must select "good" strictly more
// often and its posterior must separate from "bad"'s.
func TestBandit_ConvergesToHigherRewardArm(t *testing.T) {
	b := bandit.New(testArms(), bandit.DefaultUniformSource, time.Hour)
	rng := rand.New(rand.NewPCG(42, 7))

	goodPicks, badPicks := 0, 0
	for i := 0; i < 300; i++ {
		qaID := uuid.New()
		_, arm := b.ChooseParams("swift programming", &qaID)

		var payoutProb float64
		if arm.ID == "good" {
			goodPicks++
			payoutProb = 0.7
		} else {
			badPicks++
			payoutProb = 0.3
		}

		up := rng.Float64() < payoutProb
		b.Reward(qaID, up)
	}

	assert.Greater(t, goodPicks, badPicks)

	cluster := bandit.ClusterID("swift programming")
	good := b.Posterior(cluster, "good")
	bad := b.Posterior(cluster, "bad")
	assert.Greater(t, good.Alpha-good.Beta, bad.Alpha-bad.Beta)
}
