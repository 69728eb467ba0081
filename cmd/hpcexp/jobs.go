package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hpcexp/internal/diag"
	"hpcexp/internal/jobs"
	"hpcexp/pkg/contract"
	"hpcexp/pkg/registry"
)

func (c *cli) jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Generate SLURM job files and seed wrapper scripts",
	}
	cmd.AddCommand(c.slurmCmd(), c.seedsCmd())
	return cmd
}

func (c *cli) slurmCmd() *cobra.Command {
	spec := jobs.DefaultSlurmSpec()
	var tmplPath, outDir string
	cmd := &cobra.Command{
		Use:   "slurm",
		Short: "Write job_<run>.slurm for each run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runGenerate(cmd, "slurm", outDir, func(w contract.Writer) ([]contract.ArtifactID, string, error) {
				tmpl, err := jobs.LoadTemplate(jobs.SlurmTemplate, tmplPath)
				if err != nil {
					return nil, "", err
				}
				ids, err := jobs.WriteSlurmJobs(cmd.Context(), spec, tmpl, w)
				return ids, spec.Banner(), err
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&spec.NumJobFiles, "num-job-files", spec.NumJobFiles, "Number of job files to create")
	f.StringVar(&spec.HPCCluster, "hpc-cluster", spec.HPCCluster, "Name of the HPC cluster ("+strings.Join(jobs.Clusters, "|")+")")
	f.StringVar(&spec.GPU, "gpu", spec.GPU, "Type of GPU ("+strings.Join(jobs.GPUs, "|")+")")
	f.StringVar(&spec.ContainerShort, "container-short", spec.ContainerShort, "Container short name ("+strings.Join(jobs.Containers, "|")+")")
	f.StringVar(&spec.Framework, "ml-framework", spec.Framework, "Machine learning framework ("+strings.Join(jobs.Frameworks, "|")+")")
	f.StringVar(&spec.ModelName, "model-name", spec.ModelName, "Name of model to train")
	f.StringVar(&spec.DatasetName, "dataset-name", spec.DatasetName, "Name of dataset to use")
	f.StringVar(&spec.Optimizer, "optimizer", spec.Optimizer, "Optimizer ("+strings.Join(jobs.Optimizers, "|")+")")
	f.IntVar(&spec.Epochs, "epochs", spec.Epochs, "Number of epochs")
	f.IntVar(&spec.BatchSize, "batch-size", spec.BatchSize, "Size of the mini-batches")
	f.Float64Var(&spec.LearningRate, "learning-rate", spec.LearningRate, "Base learning rate")
	f.BoolVar(&spec.LRScheduler, "lr-scheduler", false, "Use the learning rate scheduler")
	f.BoolVar(&spec.LRWarmup, "lr-warmup", false, "Use the learning rate warmup of 5 epochs")
	f.StringVar(&tmplPath, "template", "", "Template file (text/template); default is the built-in job template")
	f.StringVar(&outDir, "output-dir", ".", "Directory to write job files into")
	return cmd
}

func (c *cli) seedsCmd() *cobra.Command {
	var (
		runs             int
		tmplPath, outDir string
	)
	cmd := &cobra.Command{
		Use:   "seeds",
		Short: "Write seed-wrapper-<run>.sh, splitting the fixed seed list across runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runGenerate(cmd, "seeds", outDir, func(w contract.Writer) ([]contract.ArtifactID, string, error) {
				tmpl, err := jobs.LoadTemplate(jobs.SeedWrapperTemplate, tmplPath)
				if err != nil {
					return nil, "", err
				}
				ids, err := jobs.WriteSeedWrappers(cmd.Context(), runs, tmpl, w)
				return ids, "", err
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&runs, "runs", 10, fmt.Sprintf("Number of run files to create (must divide %d)", len(jobs.RandomSeeds)))
	f.StringVar(&tmplPath, "template", "", "Template file (text/template); default is the built-in seed wrapper")
	f.StringVar(&outDir, "output-dir", ".", "Directory to write wrapper scripts into")
	return cmd
}

// runGenerate 装配输出 Writer 并执行一个生成器；生成器返回写出的工件与完成提示。
func (c *cli) runGenerate(cmd *cobra.Command, stage, outDir string, gen func(contract.Writer) ([]contract.ArtifactID, string, error)) error {
	start := time.Now()
	cfg, logger, err := c.setup(cmd, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
		c.writeMetrics(cfg)
	}()

	w, err := registry.Writer[cfg.Components.Writer](nil, outDir)
	if err != nil {
		fmt.Fprintf(c.stderr, "装配失败: %v\n", err)
		return fail(exitConfig, err)
	}
	t := logger.StartWith("jobs", stage, "", map[string]string{"output_dir": outDir})
	ids, banner, err := gen(w)
	for _, id := range ids {
		fmt.Fprintf(c.stdout, "Writing: %s\n", id)
	}
	if err != nil {
		code := diag.Classify(err)
		logger.Error("jobs", string(code), stage+" failed", &start)
		diag.IncOp("jobs", "error", "error")
		diag.IncError("jobs", code)
		fmt.Fprintf(c.stderr, "ERROR: %v\n", err)
		if errors.Is(err, jobs.ErrInvalidSpec) {
			return fail(exitUsage, err)
		}
		return fail(exitRuntime, err)
	}
	t.Finish(stage, int64(len(ids)))
	diag.IncOp("jobs", "finish", "success")
	diag.ObserveDuration("jobs", stage, time.Since(start))
	if banner != "" {
		fmt.Fprintln(c.stdout, banner)
	}
	return nil
}
