package opencv

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/vision"
)

// LaplacianMeter measures focus as the variance of the Laplacian of the
// grayscale face region.
type LaplacianMeter struct{}

// Sharpness implements vision.SharpnessMeter.
func (LaplacianMeter) Sharpness(img image.Image, box image.Rectangle) (float64, error) {
	src, err := gocv.ImageToMatRGB(vision.Crop(img, box))
	if err != nil {
		return 0, errors.New(err).Category(errors.CategoryEnrollment).Context("stage", "convert").Build()
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd, nil
}
