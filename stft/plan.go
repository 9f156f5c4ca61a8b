package stft

import (
	"errors"
	"sync"

	algofft "github.com/cwbudde/algo-fft"
)

// planCache memoizes FFT plans per size, mirroring analysis.spectralFFTPlan's
// sync.Map-backed cache in the teacher.
var planCache sync.Map // map[int]*fftPlan

type fftPlan struct {
	mu   sync.Mutex
	n    int
	fast *algofft.FastPlanReal64
	safe *algofft.PlanRealT[float64, complex128]
}

func getFFTPlan(n int) (*fftPlan, error) {
	if v, ok := planCache.Load(n); ok {
		return v.(*fftPlan), nil
	}

	p := &fftPlan{n: n}

	fast, err := algofft.NewFastPlanReal64(n)
	if err == nil {
		p.fast = fast
	} else if !errors.Is(err, algofft.ErrNotImplemented) {
		// Ignore fast-plan setup errors and rely on the safe plan.
	}

	safe, err := algofft.NewPlanReal64(n)
	if err != nil {
		if p.fast == nil {
			return nil, err
		}
	} else {
		p.safe = safe
	}

	actual, _ := planCache.LoadOrStore(n, p)
	return actual.(*fftPlan), nil
}

// forward computes the real-input forward FFT into dst (length n/2+1). It
// locks the plan since algo-fft plans are not safe for concurrent use, the
// same discipline analysis.lagFFTPlan applies.
func (p *fftPlan) forward(dst []complex128, src []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fast != nil {
		p.fast.Forward(dst, src)
		return nil
	}
	if p.safe != nil {
		return p.safe.Forward(dst, src)
	}
	return errors.New("stft: missing forward FFT plan")
}
