package audio

// ResampleMono16 converts little-endian PCM16 mono audio between sample
// rates using linear interpolation. Each call is stateless, so the output
// length of a chunk depends only on its own length and the rate ratio, never
// on neighboring chunks. A trailing odd byte is ignored. Equal rates return
// the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	n := len(pcm) / 2
	if n == 0 {
		return nil
	}
	m := int(int64(n) * int64(dstRate) / int64(srcRate))
	if m == 0 {
		return nil
	}

	out := make([]byte, m*2)
	step := float64(srcRate) / float64(dstRate)
	for i := 0; i < m; i++ {
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)

		s0 := sampleAt(pcm, j)
		s1 := s0
		if j+1 < n {
			s1 = sampleAt(pcm, j+1)
		}

		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
}
