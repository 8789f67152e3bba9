package fpimage

import (
	"image"

	"golang.org/x/image/draw"
)

// HFlip mirrors a width x height raster in place along the vertical axis.
func HFlip(data []byte, width, height int) {
	row := make([]byte, width)
	for y := 0; y < height; y++ {
		off := y * width
		copy(row, data[off:off+width])
		for x := 0; x < width; x++ {
			data[off+x] = row[width-x-1]
		}
	}
}

// VFlip mirrors a width x height raster in place along the horizontal axis.
func VFlip(data []byte, width, height int) {
	row := make([]byte, width)
	for y := 0; y < height/2; y++ {
		top := data[y*width : (y+1)*width]
		bottom := data[(height-y-1)*width : (height-y)*width]
		copy(row, top)
		copy(top, bottom)
		copy(bottom, row)
	}
}

// InvertColors replaces every pixel p with 255-p.
func InvertColors(data []byte) {
	for i, p := range data {
		data[i] = 0xff - p
	}
}

// SquaredStdDev returns the squared standard deviation of the pixels in buf,
// using an integer mean. It is mostly used to tell an empty scan from one
// with a finger on it.
func SquaredStdDev(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	var mean uint64
	for _, p := range buf {
		mean += uint64(p)
	}
	mean /= uint64(len(buf))

	var res uint64
	for _, p := range buf {
		dev := int64(p) - int64(mean)
		res += uint64(dev * dev)
	}
	return int(res / uint64(len(buf)))
}

// MeanSquareDiffNorm returns the mean of the squared pixel differences
// between a and b, computed over the shorter of the two buffers.
func MeanSquareDiffNorm(a, b []byte) int {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var res uint64
	for i := 0; i < n; i++ {
		d := int64(a[i]) - int64(b[i])
		res += uint64(d * d)
	}
	return int(res / uint64(n))
}

// Resize scales img by integer factors with bilinear filtering. The result
// keeps the source flags and resolution; detection results are not carried.
func Resize(img *Image, wFactor, hFactor int) *Image {
	if wFactor < 1 {
		wFactor = 1
	}
	if hFactor < 1 {
		hFactor = 1
	}
	dst := image.NewGray(image.Rect(0, 0, img.width*wFactor, img.height*hFactor))
	draw.BiLinear.Scale(dst, dst.Bounds(), img.Gray(), image.Rect(0, 0, img.width, img.height), draw.Src, nil)

	out := FromGray(dst)
	out.flags = img.flags
	out.ppmm = img.ppmm
	return out
}
