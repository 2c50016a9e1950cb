package enroll

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/tphakala/faceattend/internal/analysis"
	"github.com/tphakala/faceattend/internal/capture"
	"github.com/tphakala/faceattend/internal/conf"
	"github.com/tphakala/faceattend/internal/enrollment"
	"github.com/tphakala/faceattend/internal/errors"
	"github.com/tphakala/faceattend/internal/logger"
)

type options struct {
	id         string
	name       string
	department string
}

// Command creates the enroll command which builds a face template from a
// directory of photos or extracted video frames.
func Command(settings *conf.Settings) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "enroll [image directory]",
		Short: "Enroll an employee from a directory of images",
		Long: "Detect faces in every image of the directory and store the employee's template. " +
			"Without --name the images are added as a new template for an existing employee.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), settings, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.id, "id", "", "Employee ID")
	cmd.Flags().StringVar(&opts.name, "name", "", "Employee name; required for a new employee")
	cmd.Flags().StringVar(&opts.department, "department", "", "Employee department")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func run(ctx context.Context, settings *conf.Settings, opts *options, dir string) error {
	frames, err := LoadFrames(dir)
	if err != nil {
		return err
	}

	models, err := analysis.LoadModels(settings)
	if err != nil {
		return err
	}
	defer models.Close()

	store, err := analysis.OpenStore(settings, nil)
	if err != nil {
		return err
	}
	registrar, err := analysis.NewRegistrar(settings, models, store, nil)
	if err != nil {
		return err
	}

	var res enrollment.Result
	if opts.name != "" {
		res, err = registrar.RegisterFromFrames(ctx, opts.id, opts.name, opts.department, frames)
	} else {
		res, err = registrar.RegisterExisting(ctx, opts.id, frames)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled %s: %d faces found in %d images, %d stored\n", res.EmployeeID, res.Found, len(frames), res.Stored)
	return nil
}

// LoadFrames decodes every image in dir in name order. Files that fail to
// decode are skipped with a warning.
func LoadFrames(dir string) ([]image.Image, error) {
	files, err := capture.ListImages(dir)
	if err != nil {
		return nil, errors.New(err).
			Component("enrollment").
			Category(errors.CategoryFileIO).
			Context("dir", dir).
			Build()
	}

	log := enrollment.GetLogger()
	frames := make([]image.Image, 0, len(files))
	for _, path := range files {
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			log.Warn("skipping unreadable image", logger.String("file", path), logger.Error(err))
			continue
		}
		frames = append(frames, img)
	}

	if len(frames) == 0 {
		return nil, errors.Newf("no readable images in %s", dir).
			Component("enrollment").
			Category(errors.CategoryValidation).
			Build()
	}
	fmt.Fprintf(os.Stderr, "Loaded %d images from %s\n", len(frames), dir)
	return frames, nil
}
