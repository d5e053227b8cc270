package hid

// lengthCandidates is the fallback probe set used when a platform HID stack
// does not expose report byte lengths from the descriptor.
var lengthCandidates = []int{6, 7, 8, 19, 20, 32, 64, 128}

// ReportLength returns the declared byte length of the given report id as
// found in the device's collections, searching output, feature and input
// reports in that order. Returns 0 when the descriptor does not declare it.
func ReportLength(d Device, id byte) int {
	for _, c := range d.Collections() {
		for _, set := range [][]ReportInfo{c.OutputReports, c.FeatureReports, c.InputReports} {
			for _, r := range set {
				if r.ID == id && r.ByteLen > 0 {
					return r.ByteLen
				}
			}
		}
	}
	return 0
}

// LengthCandidates returns the padding lengths to try when sending a report,
// native first when known. The returned slice is freshly allocated.
func LengthCandidates(native int) []int {
	out := make([]int, 0, len(lengthCandidates)+1)
	if native > 0 {
		out = append(out, native)
	}
	for _, n := range lengthCandidates {
		if n != native {
			out = append(out, n)
		}
	}
	return out
}

// PadTo returns data right-padded with zeros to n bytes, or truncated to n
// when longer. The input slice is never modified.
func PadTo(data []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, data)
	return out
}
