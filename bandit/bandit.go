package bandit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raskolnikoff/noesisnoema/queryiter"
	"github.com/raskolnikoff/noesisnoema/retrieval"
)

// DefaultIdleWindow bounds how long a Selection waits for feedback before
// it is eligible for expiry.
const DefaultIdleWindow = 10 * time.Minute

// DefaultClusterBuckets is the number of query clusters queries hash into.
const DefaultClusterBuckets = 16

// Arm is one retrieval-parameter configuration the bandit can choose.
// Arms are immutable for the process lifetime unless the bandit is
// explicitly reconfigured.
type Arm struct {
	ID     string
	Params retrieval.Params
}

// ClusterID normalizes query, hashes it with FNV-1a, and buckets it into
// one of DefaultClusterBuckets clusters. An empty (post-normalization)
// query always maps to the "default" cluster.
func ClusterID(query string) string {
	normalized := queryiter.Normalize(query)
	if normalized == "" {
		return "default"
	}

	var hash uint64 = 14695981039346656037 // FNV offset basis
	for _, b := range []byte(normalized) {
		hash ^= uint64(b)
		hash *= 1099511628211 // FNV prime
	}

	bucket := hash % uint64(DefaultClusterBuckets)
	return "qcluster-" + itoa(bucket)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type selectionRecord struct {
	cluster   string
	armID     string
	expiresAt time.Time
}

// Bandit is a contextual Thompson-sampling bandit over a fixed set of
// retrieval parameter Arms, with one independent Beta posterior per
// (cluster, arm) pair. Safe for concurrent use: the posterior table and
// the selection map are guarded as a whole by one mutex, but Thompson
// draws compute their Gamma samples outside the lock, over a snapshot of
// (α,β) taken while holding it.
type Bandit struct {
	mu         sync.Mutex
	arms       []Arm
	posteriors map[string]map[string]*Beta // cluster -> arm id -> posterior
	selections map[uuid.UUID]selectionRecord
	idleWindow time.Duration
	uniform    UniformSource
}

// New builds a Bandit over arms (order is significant: it is the Thompson
// tie-break order). src is the uniform source driving Thompson draws;
// pass bandit.DefaultUniformSource in production and a bandit.FixedSequence
// in tests for determinism.
func New(arms []Arm, src UniformSource, idleWindow time.Duration) *Bandit {
	if idleWindow <= 0 {
		idleWindow = DefaultIdleWindow
	}
	if src == nil {
		src = DefaultUniformSource
	}
	return &Bandit{
		arms:       arms,
		posteriors: make(map[string]map[string]*Beta),
		selections: make(map[uuid.UUID]selectionRecord),
		idleWindow: idleWindow,
		uniform:    src,
	}
}

// ensureClusterLocked returns the posterior row for cluster, creating
// Beta(1,1) priors for any arm not yet present. Caller must hold b.mu.
func (b *Bandit) ensureClusterLocked(cluster string) map[string]*Beta {
	row, ok := b.posteriors[cluster]
	if !ok {
		row = make(map[string]*Beta, len(b.arms))
		b.posteriors[cluster] = row
	}
	for _, arm := range b.arms {
		if _, exists := row[arm.ID]; !exists {
			fresh := NewBeta()
			row[arm.ID] = &fresh
		}
	}
	return row
}

// ChooseParams draws one Thompson sample per arm for query's cluster and
// returns the arm with the largest sample (ties broken by Arm
// configuration order). If qaID is non-nil, the selection is recorded for
// later reward attribution via Reward.
func (b *Bandit) ChooseParams(query string, qaID *uuid.UUID) (cluster string, chosen Arm) {
	cluster = ClusterID(query)

	type snapshot struct {
		armID string
		alpha float64
		beta  float64
	}

	b.mu.Lock()
	row := b.ensureClusterLocked(cluster)
	snaps := make([]snapshot, len(b.arms))
	for i, arm := range b.arms {
		post := row[arm.ID]
		snaps[i] = snapshot{armID: arm.ID, alpha: post.Alpha, beta: post.Beta}
	}
	b.mu.Unlock()

	bestIdx := 0
	bestSample := -1.0
	for i, snap := range snaps {
		theta := Beta{Alpha: snap.alpha, Beta: snap.beta}.Sample(b.uniform)
		if theta > bestSample {
			bestSample = theta
			bestIdx = i
		}
	}

	chosen = b.arms[bestIdx]

	if qaID != nil {
		b.mu.Lock()
		b.selections[*qaID] = selectionRecord{
			cluster:   cluster,
			armID:     chosen.ID,
			expiresAt: time.Now().Add(b.idleWindow),
		}
		b.mu.Unlock()
	}

	return cluster, chosen
}

// Reward applies feedback for qaID: α += 1 for up, β += 1 for down. If the
// selection is missing or has expired, Reward is a no-op — callers never
// see an error for this, matching the spec's "errors never propagate"
// rule for bandit updates.
func (b *Bandit) Reward(qaID uuid.UUID, up bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sel, ok := b.selections[qaID]
	if !ok {
		return
	}
	delete(b.selections, qaID)

	if time.Now().After(sel.expiresAt) {
		return
	}

	row, ok := b.posteriors[sel.cluster]
	if !ok {
		return
	}
	post, ok := row[sel.armID]
	if !ok {
		return
	}
	if up {
		post.Alpha++
	} else {
		post.Beta++
	}
}

// ExpireStale removes selections whose idle window has elapsed as of now,
// bounding memory use even when feedback never arrives. Intended to be
// called periodically by a background reaper.
func (b *Bandit) ExpireStale(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, sel := range b.selections {
		if now.After(sel.expiresAt) {
			delete(b.selections, id)
			removed++
		}
	}
	return removed
}

// Posterior returns a copy of the current Beta posterior for (cluster,
// armID), or the uniform prior if the pair has never been observed.
func (b *Bandit) Posterior(cluster, armID string) Beta {
	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.posteriors[cluster]
	if !ok {
		return NewBeta()
	}
	post, ok := row[armID]
	if !ok {
		return NewBeta()
	}
	return *post
}

// Arms returns the bandit's configured arms in configuration order.
func (b *Bandit) Arms() []Arm {
	out := make([]Arm, len(b.arms))
	copy(out, b.arms)
	return out
}
