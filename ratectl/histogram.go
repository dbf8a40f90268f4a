package ratectl

// RetryBuckets is the size of the retry histogram. Retry counts at or above
// RetryBuckets-1 land in the last bucket.
const RetryBuckets = 100

// RetryHistogram counts completed frames by the number of retries they
// needed.
type RetryHistogram [RetryBuckets]uint32

// Record adds one frame that needed retries retries.
func (h *RetryHistogram) Record(retries uint32) {
	if retries >= RetryBuckets {
		retries = RetryBuckets - 1
	}
	h[retries]++
}

// Reset clears every bucket.
func (h *RetryHistogram) Reset() { *h = RetryHistogram{} }

// Total returns the number of recorded frames.
func (h *RetryHistogram) Total() uint64 {
	var n uint64
	for _, c := range h {
		n += uint64(c)
	}
	return n
}

// AtPercentile returns the retry count r such that at least p percent of
// recorded frames needed r retries or fewer. An empty histogram reports 0.
func (h *RetryHistogram) AtPercentile(p uint32) uint32 {
	total := h.Total()
	if total == 0 {
		return 0
	}
	if p > 100 {
		p = 100
	}
	// ceil(p*total/100), at least one frame.
	target := (uint64(p)*total + 99) / 100
	if target == 0 {
		target = 1
	}
	var cum uint64
	for r, c := range h {
		cum += uint64(c)
		if cum >= target {
			return uint32(r)
		}
	}
	return RetryBuckets - 1
}

// MeanAttempts returns the average number of transmissions per recorded
// frame (one plus its retries). An empty histogram reports 1.
func (h *RetryHistogram) MeanAttempts() float64 {
	total := h.Total()
	if total == 0 {
		return 1
	}
	var retries uint64
	for r, c := range h {
		retries += uint64(r) * uint64(c)
	}
	return float64(total+retries) / float64(total)
}
