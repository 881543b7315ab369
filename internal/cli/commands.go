package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"labeltool/internal/errors"
	"labeltool/internal/overlay"
	"labeltool/internal/stats"
	"labeltool/internal/training"
	"labeltool/pkg/colorutil"
)

func statsCommand(ctx *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [project-dir]",
		Short: "Print per-class label statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			loadAll(s)
			return stats.Summarize(s.Store, s.Classes).Write(cmd.OutOrStdout())
		},
	}
}

func normalizeCommand(ctx *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [project-dir]",
		Short: "Rewrite every label file in the current format",
		Long: `Load every image's labels, including legacy id-only lines and gt_image masks,
and save them back. Unknown classes are registered in the project settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			loadAll(s)
			sum := s.SaveAll(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			if sum.Failed > 0 {
				return fmt.Errorf("%d images failed to save", sum.Failed)
			}
			return ctx.Config.Save()
		},
	}
}

func classesCommand(ctx *Context) *cobra.Command {
	var colors map[string]string
	cmd := &cobra.Command{
		Use:   "classes [project-dir]",
		Short: "List the class table, optionally changing display colors",
		Example: `  labeltool classes ./photos
  labeltool classes ./photos --color car=#FF0000 --color person=#00FF00`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			loadAll(s)

			names := make([]string, 0, len(colors))
			for name := range colors {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				hex := colors[name]
				if _, err := colorutil.ParseHex(hex); err != nil {
					return errors.New(err).Component("cli").Category(errors.CategoryValidation).Context("class", name).Build()
				}
				id, ok := s.Classes.ID(name)
				if !ok {
					return errors.Newf("unknown class %q", name).
						Component("cli").
						Category(errors.CategoryNotFound).
						Build()
				}
				s.Classes.SetColor(id, hex)
			}

			for id, c := range s.Classes.Classes() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", id, c.Name, c.Color)
			}
			return s.SaveSettings()
		},
	}
	cmd.Flags().StringToStringVar(&colors, "color", nil, "Set a class display color as name=#RRGGBB (repeatable)")
	return cmd
}

func cleanCommand(ctx *Context) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "clean [project-dir]",
		Short: "Delete label files that belong to no image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			var files []string
			if dryRun {
				files, err = s.Persist.OrphanLabelFiles()
			} else {
				files, err = s.Persist.RemoveOrphans()
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List orphan files without deleting them")
	return cmd
}

func dataYAMLCommand(ctx *Context) *cobra.Command {
	var train, val, out string
	cmd := &cobra.Command{
		Use:   "data-yaml [project-dir]",
		Short: "Write a data.yaml for the project's class table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			// class ids only become known once every file has been read
			loadAll(s)
			if train == "" {
				train = s.Project.ImagesDir()
			}
			if val == "" {
				val = train
			}
			if out == "" {
				out = filepath.Join(s.Project.Dir(), "data.yaml")
			}
			if err := training.WriteDataYAML(out, train, val, s.Classes.List()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return s.SaveSettings()
		},
	}
	cmd.Flags().StringVar(&train, "train", "", "Training image directory (default <project>/images)")
	cmd.Flags().StringVar(&val, "val", "", "Validation image directory (default same as --train)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output path (default <project>/data.yaml)")
	return cmd
}

func previewCommand(ctx *Context) *cobra.Command {
	var out string
	opts := overlay.DefaultOptions()
	cmd := &cobra.Command{
		Use:   "preview [project-dir] [image]",
		Short: "Render an image with its labels drawn on top",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			img := args[1]
			if !filepath.IsAbs(img) {
				img = filepath.Join(s.Project.Dir(), img)
			}
			base, err := imaging.Open(img)
			if err != nil {
				return errors.New(err).
					Component("cli").
					Category(errors.CategoryImageDecode).
					Context("path", img).
					Build()
			}
			if out == "" {
				out = filepath.Join(s.Project.Dir(), "preview", filepath.Base(img)+".png")
			}
			rendered := overlay.Render(base, s.Labels(img), opts)
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return errors.FileError("cli", err, out)
			}
			if err := imaging.Save(rendered, out); err != nil {
				return errors.FileError("cli", err, out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output PNG (default <project>/preview/<image>.png)")
	cmd.Flags().IntVar(&opts.LineWidth, "line-width", opts.LineWidth, "Outline width in pixels")
	cmd.Flags().Float64Var(&opts.MaskOpacity, "mask-opacity", opts.MaskOpacity, "Mask fill opacity, 0 to 1")
	return cmd
}
