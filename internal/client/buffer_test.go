package client

import (
	"sync"
	"testing"
	"time"

	"github.com/afroash/envmon/internal/models"
)

func payload(value float64) *models.ReadingPayload {
	return &models.ReadingPayload{
		SensorID: "pi-01-temperature",
		Type:     "temperature",
		Value:    models.Float(value),
		Unit:     "°C",
	}
}

func TestNewReadingBuffer(t *testing.T) {
	buf := NewReadingBuffer(100, true)

	if buf.Capacity() != 100 {
		t.Errorf("Capacity = %d, want 100", buf.Capacity())
	}
	if !buf.IsEmpty() {
		t.Error("New buffer should be empty")
	}
	if buf.IsFull() {
		t.Error("New buffer should not be full")
	}
}

func TestBuffer_PushAndPopBatch(t *testing.T) {
	buf := NewReadingBuffer(10, true)

	for i := 0; i < 5; i++ {
		if !buf.Push(payload(float64(20 + i))) {
			t.Fatalf("Push %d returned false", i)
		}
	}
	if buf.Size() != 5 {
		t.Errorf("Size = %d, want 5", buf.Size())
	}

	batch := buf.PopBatch(3)
	if len(batch) != 3 {
		t.Fatalf("PopBatch(3) returned %d, want 3", len(batch))
	}
	if *batch[0].Value != 20.0 {
		t.Errorf("first value = %v, want 20.0", *batch[0].Value)
	}
	if buf.Size() != 2 {
		t.Errorf("Size after pop = %d, want 2", buf.Size())
	}
}

func TestBuffer_PopBatchMoreThanAvailable(t *testing.T) {
	buf := NewReadingBuffer(10, true)
	for i := 0; i < 3; i++ {
		buf.Push(payload(22.0))
	}

	batch := buf.PopBatch(10)
	if len(batch) != 3 {
		t.Errorf("PopBatch(10) with 3 available returned %d, want 3", len(batch))
	}
	if !buf.IsEmpty() {
		t.Error("Buffer should be empty after popping all")
	}
	if got := buf.PopBatch(1); got != nil {
		t.Errorf("PopBatch on empty buffer = %v, want nil", got)
	}
}

func TestBuffer_Peek(t *testing.T) {
	buf := NewReadingBuffer(10, true)
	for i := 0; i < 5; i++ {
		buf.Push(payload(float64(20 + i)))
	}

	peeked := buf.Peek(3)
	if len(peeked) != 3 {
		t.Errorf("Peek(3) returned %d, want 3", len(peeked))
	}
	if buf.Size() != 5 {
		t.Errorf("Size after peek = %d, want 5", buf.Size())
	}
	if *peeked[0].Value != 20.0 {
		t.Errorf("first peeked value = %v, want 20.0", *peeked[0].Value)
	}
}

func TestBuffer_DropOldest(t *testing.T) {
	buf := NewReadingBuffer(3, true)
	for i := 0; i < 3; i++ {
		buf.Push(payload(float64(20 + i)))
	}
	if !buf.IsFull() {
		t.Error("Buffer should be full")
	}

	if !buf.Push(payload(99.0)) {
		t.Error("Push in drop-oldest mode should succeed")
	}

	batch := buf.PopBatch(3)
	if *batch[0].Value != 21.0 {
		t.Errorf("first value = %v, want 21.0", *batch[0].Value)
	}
	if *batch[2].Value != 99.0 {
		t.Errorf("last value = %v, want 99.0", *batch[2].Value)
	}
}

func TestBuffer_DropNewest(t *testing.T) {
	buf := NewReadingBuffer(3, false)
	for i := 0; i < 3; i++ {
		buf.Push(payload(float64(20 + i)))
	}

	if buf.Push(payload(99.0)) {
		t.Error("Push should return false when full in drop-newest mode")
	}

	batch := buf.PopBatch(3)
	if *batch[2].Value != 22.0 {
		t.Errorf("last value = %v, want 22.0", *batch[2].Value)
	}
}

func TestBuffer_Clear(t *testing.T) {
	buf := NewReadingBuffer(10, true)
	for i := 0; i < 5; i++ {
		buf.Push(payload(22.0))
	}

	buf.Clear()

	if !buf.IsEmpty() {
		t.Error("Buffer should be empty after Clear()")
	}
	if buf.Stats().TotalPushed != 0 {
		t.Error("Clear should reset stats")
	}
}

func TestBuffer_Stats(t *testing.T) {
	buf := NewReadingBuffer(3, true)
	for i := 0; i < 5; i++ {
		buf.Push(payload(22.0))
	}

	stats := buf.Stats()
	if stats.TotalPushed != 5 {
		t.Errorf("TotalPushed = %d, want 5", stats.TotalPushed)
	}
	if stats.TotalDropped != 2 {
		t.Errorf("TotalDropped = %d, want 2", stats.TotalDropped)
	}
	if stats.HighWaterMark != 3 {
		t.Errorf("HighWaterMark = %d, want 3", stats.HighWaterMark)
	}
	if stats.LastPushTime.IsZero() || stats.LastDropTime.IsZero() {
		t.Error("push and drop times should be set")
	}
}

func TestBuffer_String(t *testing.T) {
	buf := NewReadingBuffer(4, false)
	buf.Push(payload(1))

	want := "Buffer[1/4, dropped: 0, mode: drop-newest]"
	if got := buf.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBuffer_ThreadSafety(t *testing.T) {
	buf := NewReadingBuffer(1000, true)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Push(payload(float64(id*100 + j)))
			}
		}(i)
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				buf.Peek(5)
				buf.PopBatch(10)
				time.Sleep(time.Millisecond)
			}
		}()
	}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf.Size()
				buf.IsEmpty()
				buf.IsFull()
				buf.Stats()
			}
		}()
	}

	wg.Wait()
	t.Logf("Final buffer state: %s", buf.String())
}

func TestBuffer_FIFOOrder(t *testing.T) {
	buf := NewReadingBuffer(100, true)
	for i := 0; i < 10; i++ {
		buf.Push(payload(float64(i)))
	}

	for i, p := range buf.PopBatch(10) {
		if *p.Value != float64(i) {
			t.Errorf("payload %d has value %v, want %v", i, *p.Value, float64(i))
		}
	}
}

func BenchmarkBuffer_Push(b *testing.B) {
	buf := NewReadingBuffer(10000, true)
	p := payload(22.5)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Push(p)
	}
}

func BenchmarkBuffer_PopBatch(b *testing.B) {
	buf := NewReadingBuffer(10000, true)
	for i := 0; i < 10000; i++ {
		buf.Push(payload(22.5))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.PopBatch(100)
	}
}

func TestBuffer_WrapAround(t *testing.T) {
	buf := NewReadingBuffer(3, false)
	for i := 0; i < 3; i++ {
		buf.Push(payload(float64(i)))
	}
	buf.PopBatch(2)
	buf.Push(payload(3))
	buf.Push(payload(4))

	if !buf.IsFull() {
		t.Fatal("Buffer should be full after wrapping")
	}
	got := buf.PopBatch(3)
	for i, want := range []float64{2, 3, 4} {
		if *got[i].Value != want {
			t.Errorf("payload %d = %v, want %v", i, *got[i].Value, want)
		}
	}
}

func TestNewReadingBuffer_MinimumCapacity(t *testing.T) {
	buf := NewReadingBuffer(0, true)
	if buf.Capacity() != 1 {
		t.Errorf("Capacity = %d, want 1", buf.Capacity())
	}
	buf.Push(payload(1))
	buf.Push(payload(2))
	if got := buf.Peek(1); *got[0].Value != 2 {
		t.Errorf("value = %v, want 2", *got[0].Value)
	}
}
