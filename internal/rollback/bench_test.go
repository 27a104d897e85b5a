package rollback

import (
	"fmt"
	"testing"
)

// BenchmarkSaveFrame benchmarks a save at typical sandbox state sizes.
func BenchmarkSaveFrame(b *testing.B) {
	sizes := []int{64 << 10, 1 << 20, 4 << 20}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("state_%dKiB", size>>10), func(b *testing.B) {
			m := NewManager(size)
			src := newFakeSource()
			src.memory = make([]byte, size)

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				snap, err := m.SaveFrame(src, int64(i))
				if err != nil {
					b.Fatalf("SaveFrame: %v", err)
				}
				if i >= DefaultMaxRollbackFrames {
					m.ConfirmFrame(int64(i - DefaultMaxRollbackFrames))
				}
				_ = snap
			}
		})
	}
}

// BenchmarkLoadFrame benchmarks a checksum-verified restore.
func BenchmarkLoadFrame(b *testing.B) {
	sizes := []int{64 << 10, 1 << 20}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("state_%dKiB", size>>10), func(b *testing.B) {
			m := NewManager(size)
			src := newFakeSource()
			src.memory = make([]byte, size)
			if _, err := m.SaveFrame(src, 0); err != nil {
				b.Fatalf("SaveFrame: %v", err)
			}

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				if err := m.LoadFrame(src, 0); err != nil {
					b.Fatalf("LoadFrame: %v", err)
				}
			}
		})
	}
}

// BenchmarkPoolAcquireRelease measures the steady-state buffer cycle.
func BenchmarkPoolAcquireRelease(b *testing.B) {
	p := NewPool(1<<20, DefaultPoolSize)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		buf := p.Acquire()
		p.Release(buf)
	}
}

// BenchmarkChecksum measures the xxhash over a full snapshot.
func BenchmarkChecksum(b *testing.B) {
	data := make([]byte, 1<<20)
	console := make([]byte, 4<<10)
	input := make([]byte, 256)
	host := NewHostRollbackState(0xFEED, 100, 1.5)

	b.ResetTimer()
	b.SetBytes(int64(len(data) + len(console) + len(input) + HostStateSize))

	for i := 0; i < b.N; i++ {
		_ = computeChecksum(data, console, input, host)
	}
}
