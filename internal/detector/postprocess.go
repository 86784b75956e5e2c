package detector

import (
	"fmt"
	"math"
	"slices"
)

// outputLayout describes how a YOLO output tensor is laid out.
// YOLOv8 exports emit [1, 4+nc, N] (channels first); some converters
// transpose that to [1, N, 4+nc]. YOLOv5 exports emit [1, N, 5+nc] with an
// objectness column after the box.
type outputLayout struct {
	boxes         int
	stride        int  // values per box
	channelsFirst bool // [1, stride, boxes]
	objectness    bool
	numClasses    int
}

// resolveLayout infers the layout from the output tensor dims and the number of labels.
func resolveLayout(dims []int, numClasses int) (outputLayout, error) {
	if len(dims) == 2 {
		dims = append([]int{1}, dims...)
	}
	if len(dims) != 3 || dims[0] != 1 {
		return outputLayout{}, fmt.Errorf("unsupported output shape %v", dims)
	}
	a, b := dims[1], dims[2]
	switch {
	case a == 4+numClasses && b != a:
		return outputLayout{boxes: b, stride: a, channelsFirst: true, numClasses: numClasses}, nil
	case b == 4+numClasses:
		return outputLayout{boxes: a, stride: b, numClasses: numClasses}, nil
	case b == 5+numClasses:
		return outputLayout{boxes: a, stride: b, objectness: true, numClasses: numClasses}, nil
	case a == 5+numClasses:
		return outputLayout{boxes: b, stride: a, channelsFirst: true, objectness: true, numClasses: numClasses}, nil
	}
	return outputLayout{}, fmt.Errorf("output shape %v does not match %d classes", dims, numClasses)
}

func (l outputLayout) at(out []float32, box, ch int) float32 {
	if l.channelsFirst {
		return out[ch*l.boxes+box]
	}
	return out[box*l.stride+ch]
}

// candidate is a box in model input pixels before NMS.
type candidate struct {
	class int
	score float32
	box   [4]float64 // xyxy
}

// decodeOutput turns the raw tensor into candidates scoring at least minConfidence.
// Boxes are cx, cy, w, h; normalized exports are scaled to inputSize.
func decodeOutput(out []float32, l outputLayout, inputSize int, minConfidence float32) ([]candidate, error) {
	if len(out) < l.boxes*l.stride {
		return nil, fmt.Errorf("output holds %d values, layout needs %d", len(out), l.boxes*l.stride)
	}

	classOffset := 4
	if l.objectness {
		classOffset = 5
	}

	// Exports with embedded normalization report coordinates in [0,1].
	var maxCoord float32
	for i := range l.boxes {
		for ch := range 4 {
			maxCoord = max(maxCoord, l.at(out, i, ch))
		}
	}
	scale := float64(1)
	if maxCoord <= 1.5 {
		scale = float64(inputSize)
	}

	var cands []candidate
	for i := range l.boxes {
		best, bestScore := -1, float32(0)
		for c := range l.numClasses {
			s := l.at(out, i, classOffset+c)
			if s > bestScore {
				best, bestScore = c, s
			}
		}
		if l.objectness {
			bestScore *= l.at(out, i, 4)
		}
		if best < 0 || bestScore < minConfidence {
			continue
		}
		cx := float64(l.at(out, i, 0)) * scale
		cy := float64(l.at(out, i, 1)) * scale
		w := float64(l.at(out, i, 2)) * scale
		h := float64(l.at(out, i, 3)) * scale
		cands = append(cands, candidate{
			class: best,
			score: bestScore,
			box:   [4]float64{cx - w/2, cy - h/2, cx + w/2, cy + h/2},
		})
	}
	return cands, nil
}

// nms applies per-class non-maximum suppression and returns survivors by descending score.
func nms(cands []candidate, iouThreshold float32) []candidate {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	kept := make([]candidate, 0, len(cands))
	suppressed := make([]bool, len(cands))
	for i := range cands {
		if suppressed[i] {
			continue
		}
		kept = append(kept, cands[i])
		for j := i + 1; j < len(cands); j++ {
			if !suppressed[j] && cands[j].class == cands[i].class &&
				iou(cands[i].box, cands[j].box) > float64(iouThreshold) {
				suppressed[j] = true
			}
		}
	}
	return kept
}

func iou(a, b [4]float64) float64 {
	ix1, iy1 := max(a[0], b[0]), max(a[1], b[1])
	ix2, iy2 := min(a[2], b[2]), min(a[3], b[3])
	iw, ih := max(0, ix2-ix1), max(0, iy2-iy1)
	inter := iw * ih
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b [4]float64) float64 {
	return max(0, b[2]-b[0]) * max(0, b[3]-b[1])
}

// toDetections maps surviving candidates back to source image pixels.
func toDetections(cands []candidate, lb letterbox) []Detection {
	dets := make([]Detection, 0, len(cands))
	for _, c := range cands {
		x1, y1 := lb.toSource(c.box[0], c.box[1])
		x2, y2 := lb.toSource(c.box[2], c.box[3])
		if x2 <= x1 || y2 <= y1 {
			continue
		}
		dets = append(dets, Detection{
			Class:      c.class,
			Confidence: c.score,
			BBox:       &[4]float32{float32(x1), float32(y1), float32(x2), float32(y2)},
		})
	}
	return dets
}

// softmax normalizes logits into probabilities. Inputs that already sum to one
// pass through unchanged apart from rounding.
func softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	var sum float64
	probs := make([]float64, len(logits))
	isDistribution := true
	for i, v := range logits {
		probs[i] = float64(v)
		if v < 0 || v > 1 {
			isDistribution = false
		}
		sum += float64(v)
	}
	if isDistribution && sum > 0.999 && sum < 1.001 {
		return probs
	}

	peak := slices.Max(probs)
	sum = 0
	for i, v := range probs {
		probs[i] = math.Exp(v - peak)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
