package workload

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidStrategy is returned by newStrategy for any value outside
// auto/seed/fixed/round.
var ErrInvalidStrategy = errors.New("workload: unrecognized selection strategy")

// testKind is the index space of the three test functions: 0=drop
// table, 1=alter table, 2=delete node group, matching the original
// benchmark's TestType enum.
type testKind int

const (
	testDropTable testKind = iota
	testAlterTable
	testDeleteNodeGroup
	numTestKinds = 3
)

// strategy decides which test kind to run on each iteration and seeds
// the RNG used for table/column selection inside that test.
type strategy interface {
	name() string
	value() int
	next(iteration int) testKind
	rng() *rand.Rand
}

type autoStrategy struct{ r *rand.Rand }
type seedStrategy struct {
	seed int64
	r    *rand.Rand
}
type fixedStrategy struct {
	kind testKind
	r    *rand.Rand
}
type roundStrategy struct {
	start testKind
	r     *rand.Rand
}

func (s *autoStrategy) name() string             { return "auto" }
func (s *autoStrategy) value() int                { return 0 }
func (s *autoStrategy) next(int) testKind         { return testKind(s.r.Intn(numTestKinds)) }
func (s *autoStrategy) rng() *rand.Rand           { return s.r }

func (s *seedStrategy) name() string      { return "seed" }
func (s *seedStrategy) value() int        { return int(s.seed) }
func (s *seedStrategy) next(int) testKind { return testKind(s.r.Intn(numTestKinds)) }
func (s *seedStrategy) rng() *rand.Rand   { return s.r }

func (s *fixedStrategy) name() string      { return "fixed" }
func (s *fixedStrategy) value() int        { return int(s.kind) }
func (s *fixedStrategy) next(int) testKind { return s.kind }
func (s *fixedStrategy) rng() *rand.Rand   { return s.r }

func (s *roundStrategy) name() string { return "round" }
func (s *roundStrategy) value() int   { return int(s.start) }
func (s *roundStrategy) next(iteration int) testKind {
	return testKind((int(s.start) + iteration) % numTestKinds)
}
func (s *roundStrategy) rng() *rand.Rand { return s.r }

// newStrategy constructs the strategy named by kindName. value is
// required for every kind except "auto". fixed/round additionally
// seed their RNG to a constant (their own value) so the choice of
// table/column inside each test is reproducible across runs, per the
// driver's reproducibility rule.
func newStrategy(kindName string, value int, hasValue bool) (strategy, error) {
	switch kindName {
	case "auto":
		return &autoStrategy{r: rand.New(rand.NewSource(time.Now().UnixNano()))}, nil
	case "seed":
		if !hasValue {
			return nil, errors.Wrap(ErrInvalidStrategy, "seed strategy requires -V")
		}
		return &seedStrategy{seed: int64(value), r: rand.New(rand.NewSource(int64(value)))}, nil
	case "fixed":
		if !hasValue || value < 0 || value >= numTestKinds {
			return nil, errors.Wrapf(ErrInvalidStrategy, "fixed strategy requires -V in {0,1,2}, got %d", value)
		}
		return &fixedStrategy{kind: testKind(value), r: rand.New(rand.NewSource(int64(value)))}, nil
	case "round":
		if !hasValue || value < 0 || value >= numTestKinds {
			return nil, errors.Wrapf(ErrInvalidStrategy, "round strategy requires -V in {0,1,2}, got %d", value)
		}
		return &roundStrategy{start: testKind(value), r: rand.New(rand.NewSource(int64(value)))}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidStrategy, "%q", kindName)
	}
}
