package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"labeltool/internal/autolabel"
	"labeltool/internal/errors"
	"labeltool/internal/training"
)

func autolabelCommand(ctx *Context) *cobra.Command {
	var (
		command   string
		cmdArgs   []string
		threshold float64
		replace   bool
	)
	cmd := &cobra.Command{
		Use:   "autolabel [project-dir]",
		Short: "Label every image with an external predictor",
		Long: `Run the predictor command once per image with the image path as its last
argument. The command prints a prediction as JSON on stdout. Results are merged
into the existing labels (or replace them with --replace) and saved.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				command = ctx.Settings.Predictor.Command
				if len(cmdArgs) == 0 {
					cmdArgs = ctx.Settings.Predictor.Args
				}
			}
			if command == "" {
				return errors.Newf("no predictor command configured").
					Component("cli").
					Category(errors.CategoryConfig).
					Build()
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = ctx.Settings.DefaultConfidence
			}

			s, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			out := cmd.ErrOrStderr()
			w := &autolabel.Worker{
				Predictor: autolabel.ExecPredictor{Command: command, Args: cmdArgs},
				OnProgress: func(p autolabel.Progress) {
					fmt.Fprintf(out, "\r%d/%d", p.Done, p.Total)
				},
			}

			failed := 0
			sink := s.AutoLabelSink(threshold, replace)
			if err := w.Start(cmd.Context(), s.Project.Images(), func(r autolabel.Result) {
				if r.Err != nil {
					failed++
				}
				sink(r)
			}); err != nil {
				return err
			}

			done := make(chan struct{})
			go func() {
				w.Wait()
				close(done)
			}()
		loop:
			for {
				select {
				case <-s.Pending():
					s.Drain()
				case <-done:
					s.Drain()
					break loop
				}
			}
			fmt.Fprintln(out)

			sum := s.SaveAll(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), sum)
			if failed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d images could not be predicted\n", failed)
			}
			return cmd.Context().Err()
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "Predictor executable (default predictor.command)")
	cmd.Flags().StringSliceVar(&cmdArgs, "arg", nil, "Argument passed to the predictor before the image path (repeatable)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "Minimum detection confidence")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace existing labels instead of merging")
	return cmd
}

func trainCommand(ctx *Context) *cobra.Command {
	var (
		command string
		model   string
		epochs  int
		extra   []string
	)
	cmd := &cobra.Command{
		Use:   "train [data.yaml]",
		Short: "Run the external trainer on a data.yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if command == "" {
				command = ctx.Settings.Trainer.Command
			}
			trainArgs := []string{"train", "data=" + args[0], fmt.Sprintf("epochs=%d", epochs)}
			if model != "" {
				trainArgs = append(trainArgs, "model="+model)
				ctx.Config.AddRecentModel(model)
			}
			trainArgs = append(trainArgs, extra...)

			out := cmd.ErrOrStderr()
			r := &training.Runner{
				Command: command,
				Args:    trainArgs,
				OnProgress: func(p training.Progress) {
					fmt.Fprintf(out, "\repoch %d/%d loss %.4f", p.Epoch, p.Epochs, p.Loss)
				},
			}
			res, err := r.Run(cmd.Context())
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			if res.BestWeights != "" {
				fmt.Fprintln(cmd.OutOrStdout(), res.BestWeights)
				ctx.Config.AddRecentModel(res.BestWeights)
			}
			return ctx.Config.Save()
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "Trainer executable (default trainer.command)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Starting weights")
	cmd.Flags().IntVarP(&epochs, "epochs", "e", 100, "Number of epochs")
	cmd.Flags().StringArrayVar(&extra, "set", nil, "Extra key=value trainer argument (repeatable)")
	return cmd
}
