package vocoder

// fold lays frame i into the output at offset i*nHop, summing into existing
// content, then trims nPad samples from both ends. Accumulation runs in
// ascending frame order so repeated runs are bit-exact.
func fold(frames [][]float64, nOut, nWin, nHop, nPad int) []float64 {
	out := make([]float64, nOut)
	for i, frame := range frames {
		start := i * nHop
		for j := 0; j < nWin && start+j < nOut; j++ {
			out[start+j] += frame[j]
		}
	}
	if nPad > 0 {
		return out[nPad : nOut-nPad]
	}
	return out
}

// normalize divides the accumulated audio by the accumulated window energy
// wherever the energy is above the floor. Positions below the floor keep
// their near-zero value: edges and coverage gaps come out as silence rather
// than a division blow-up.
const energyFloor = 1e-10

func normalize(audio, energy []float64) {
	for i := range audio {
		if energy[i] > energyFloor {
			audio[i] /= energy[i]
		}
	}
}
