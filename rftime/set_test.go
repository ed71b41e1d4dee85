package rftime

import (
	"math"
	"testing"
)

func TestSetGetOutOfRangeReturnsZero(t *testing.T) {
	s := NewSet(Timestamp{FullSecs: 42, FracSecs: 0.5})
	if got := s.Get(NumChannels); got != (Timestamp{}) {
		t.Fatalf("Get(%d) = %+v, want zero", NumChannels, got)
	}
	if got := s.Get(1 << 31); got != (Timestamp{}) {
		t.Fatalf("Get(huge) = %+v, want zero", got)
	}
	for i := uint32(0); i < NumChannels; i++ {
		if got := s.Get(i); got.FullSecs != 42 {
			t.Fatalf("Get(%d) = %+v, want FullSecs 42", i, got)
		}
	}
}

func TestSetPtr(t *testing.T) {
	s := &Set{}
	if p := s.Ptr(NumChannels); p != nil {
		t.Fatalf("Ptr(%d) = %p, want nil", NumChannels, p)
	}
	p := s.Ptr(3)
	if p == nil {
		t.Fatalf("Ptr(3) = nil")
	}
	p.Add(7, 0.25)
	if got := s.Get(3); got.FullSecs != 7 || got.FracSecs != 0.25 {
		t.Fatalf("Get(3) after Ptr update = %+v", got)
	}
	if got := s.Get(2); got != (Timestamp{}) {
		t.Fatalf("Get(2) = %+v, neighbour must be untouched", got)
	}
}

func TestSetAddSubRestores(t *testing.T) {
	for _, secs := range []float64{0.001, 0.5, 1.0, 3.75, 1234.5678, -0.001, -2.5, -1e-6} {
		s := &Set{}
		for i := uint32(0); i < NumChannels; i++ {
			s.Ptr(i).Add(int64(i)*10, 0.03*float64(i))
		}
		before := s.Clone()

		s.Add(secs)
		for i := uint32(0); i < NumChannels; i++ {
			ts := s.Get(i)
			if ts.FracSecs < 0 || ts.FracSecs >= 1 {
				t.Fatalf("secs=%v channel %d not normalized: %+v", secs, i, ts)
			}
		}
		s.Sub(secs)

		for i := uint32(0); i < NumChannels; i++ {
			got, want := s.Get(i), before.Get(i)
			if diff := math.Abs(got.Seconds() - want.Seconds()); diff > 1e-9 {
				t.Fatalf("secs=%v channel %d = %+v, want %+v", secs, i, got, want)
			}
		}
	}
}

func TestSetChannelsShiftIndependently(t *testing.T) {
	s := &Set{}
	s.Ptr(0).Add(0, 0.9)
	s.Ptr(1).Add(0, 0.1)
	s.Add(0.2)

	if got := s.Get(0); got.FullSecs != 1 || math.Abs(got.FracSecs-0.1) > 1e-9 {
		t.Fatalf("channel 0 = %+v, want {1 0.1}", got)
	}
	if got := s.Get(1); got.FullSecs != 0 || math.Abs(got.FracSecs-0.3) > 1e-9 {
		t.Fatalf("channel 1 = %+v, want {0 0.3}", got)
	}
}

func TestSetCloneIsIndependent(t *testing.T) {
	s := NewSet(Timestamp{FullSecs: 1})
	c := s.Clone()
	s.Add(5)
	if got := c.Get(0); got.FullSecs != 1 {
		t.Fatalf("clone changed with original: %+v", got)
	}

	var dst Set
	dst.CopyFrom(s)
	if got := dst.Get(NumChannels - 1); got.FullSecs != 6 {
		t.Fatalf("CopyFrom last channel = %+v, want FullSecs 6", got)
	}
	dst.CopyFrom(nil)
	if got := dst.Get(0); got.FullSecs != 6 {
		t.Fatalf("CopyFrom(nil) must be a no-op, got %+v", got)
	}
}
