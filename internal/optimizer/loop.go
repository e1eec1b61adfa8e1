package optimizer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/longregen/gepa/internal/domain"
	"github.com/longregen/gepa/internal/domain/models"
	"github.com/longregen/gepa/internal/ports"
)

// Options tunes the optimization loop. Zero values fall back to the
// defaults returned by DefaultOptions.
type Options struct {
	// RunName labels the persisted run row.
	RunName string
	// MinibatchSize is how many training examples are drawn per iteration.
	MinibatchSize int
	// MergeFrequency is the iteration interval between merge attempts.
	MergeFrequency int
	// MaxCandidates caps the pool size; exceeding it triggers a prune.
	MaxCandidates int
	// AncestorDepth bounds the lineage walk shown to the mutator.
	AncestorDepth int
	// Parallelism bounds concurrent example evaluations.
	Parallelism int
	// Seed seeds the rng used for parent selection and minibatch sampling.
	Seed int64
}

func DefaultOptions() Options {
	return Options{
		RunName:        "gepa",
		MinibatchSize:  3,
		MergeFrequency: 5,
		MaxCandidates:  20,
		AncestorDepth:  5,
		Parallelism:    4,
		Seed:           42,
	}
}

func (o *Options) normalize() {
	def := DefaultOptions()
	if o.RunName == "" {
		o.RunName = def.RunName
	}
	if o.MinibatchSize <= 0 {
		o.MinibatchSize = def.MinibatchSize
	}
	if o.MergeFrequency <= 0 {
		o.MergeFrequency = def.MergeFrequency
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = def.MaxCandidates
	}
	if o.AncestorDepth <= 0 {
		o.AncestorDepth = def.AncestorDepth
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
}

// Result summarizes a finished optimization run.
type Result struct {
	Best         *models.Candidate
	BestIndex    int
	BestScore    float64
	Iterations   int
	RolloutsUsed int
	Accepted     int
	PoolSize     int
	RunID        string
}

// Optimizer drives the genetic-Pareto search: evaluate a seed candidate on
// the validation set, then repeatedly select a Pareto parent, reflectively
// mutate one stage, and admit the mutant only when it strictly beats the
// parent on the same minibatch, at which point it earns a full validation
// row in the pool.
type Optimizer struct {
	pipeline ports.Pipeline
	feedback ports.FeedbackGenerator
	mutator  *ReflectiveMutator
	harness  *EvaluationHarness
	opts     Options
	rng      *rand.Rand

	repo     ports.RunRepository
	ids      ports.IDGenerator
	progress ports.ProgressPublisher
}

func New(pipeline ports.Pipeline, feedback ports.FeedbackGenerator, mutator *ReflectiveMutator, opts Options) *Optimizer {
	opts.normalize()
	return &Optimizer{
		pipeline: pipeline,
		feedback: feedback,
		mutator:  mutator,
		harness:  NewEvaluationHarness(pipeline),
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}
}

// WithRepository enables persistence of the run, its accepted candidates,
// and their evaluations. Storage failures after the initial run row exists
// are logged and skipped; they never abort the search.
func (o *Optimizer) WithRepository(repo ports.RunRepository, ids ports.IDGenerator) *Optimizer {
	o.repo = repo
	o.ids = ids
	return o
}

// WithProgressPublisher enables progress event publication.
func (o *Optimizer) WithProgressPublisher(pub ports.ProgressPublisher) *Optimizer {
	o.progress = pub
	return o
}

// Run executes the optimization loop until the rollout budget is spent and
// returns the candidate with the highest mean validation score. The seed is
// always charged one full validation pass up front. Cancelling the context
// stops the loop between iterations and returns the best candidate found so
// far together with the context's error.
func (o *Optimizer) Run(ctx context.Context, seed *models.Candidate, train, val []models.Example, budget int) (*Result, error) {
	if seed == nil || len(seed.StageSequence) == 0 {
		return nil, domain.ErrEmptyStageSequence
	}
	if len(train) == 0 || len(val) == 0 {
		return nil, domain.ErrEmptyDataset
	}
	if budget <= 0 {
		return nil, fmt.Errorf("%w: rollout budget must be positive, got %d", domain.ErrInvalidInput, budget)
	}

	run, err := o.startRun(ctx, budget, len(train), len(val))
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "starting optimization run",
		"run_id", runID(run),
		"budget", budget,
		"train_examples", len(train),
		"val_examples", len(val),
		"minibatch_size", o.opts.MinibatchSize,
		"max_candidates", o.opts.MaxCandidates,
		"seed", o.opts.Seed)

	rollouts := NewRolloutBudget(budget)
	pool := NewCandidatePool()

	seedResults := o.evaluateAll(ctx, seed, val)
	rollouts.Charge(len(val))
	if _, err := pool.Append(seed, NoParent, scoresOf(seedResults)); err != nil {
		return nil, err
	}

	// recordIDs mirrors the pool index-for-index so children can reference
	// their parent's persisted row; Prune remaps both together.
	recordIDs := []string{o.recordCandidate(ctx, run, 0, "", seed, seedResults, "seed")}

	o.publish(&ports.ProgressEvent{
		Type:         ports.EventRunStarted,
		RunID:        runID(run),
		RolloutsUsed: rollouts.Used(),
		Budget:       budget,
		BestScore:    mean(pool.Scores(0)),
		PoolSize:     pool.Len(),
	})

	sequence := seed.StageSequence
	iteration := 0
	accepted := 0

	for !rollouts.Exhausted() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			slog.WarnContext(ctx, "optimization cancelled",
				"iteration", iteration,
				"rollouts_used", rollouts.Used())
			o.failRun(ctx, run, ctxErr)
			return o.buildResult(pool, run, iteration, accepted, rollouts), ctxErr
		}

		iteration++
		parentIdx := SelectParent(pool.Matrix(), o.rng)
		parent := pool.Candidate(parentIdx)
		stageIdx := iteration % len(sequence)
		stageName := sequence[stageIdx]

		slog.DebugContext(ctx, "iteration start",
			"iteration", iteration,
			"parent_index", parentIdx,
			"stage", stageName,
			"rollouts_used", rollouts.Used())

		batch := o.sampleMinibatch(train)
		samples := o.traceMinibatch(ctx, parent, batch, stageIdx)
		rollouts.Charge(len(batch))

		parentStage, ok := parent.Stage(stageName)
		if !ok {
			stageErr := fmt.Errorf("%w: %s", domain.ErrStageNotFound, stageName)
			o.failRun(ctx, run, stageErr)
			return nil, stageErr
		}

		ancestors := pool.Ancestors(parentIdx, stageName, o.opts.AncestorDepth)
		newInstruction, err := o.mutator.Propose(ctx, parentStage.Instruction, samples, ancestors, stageName)
		if err != nil {
			o.failRun(ctx, run, err)
			return nil, err
		}

		child, err := parent.WithInstruction(stageName, newInstruction)
		if err != nil {
			o.failRun(ctx, run, err)
			return nil, err
		}

		before := sampleScores(samples)
		after := scoresOf(o.evaluateAll(ctx, child, batch))

		if mean(after) > mean(before) {
			valResults := o.evaluateAll(ctx, child, val)
			rollouts.Charge(len(val))

			childIdx, appendErr := pool.Append(child, parentIdx, scoresOf(valResults))
			if appendErr != nil {
				o.failRun(ctx, run, appendErr)
				return nil, appendErr
			}
			recordIDs = append(recordIDs, o.recordCandidate(ctx, run, iteration, recordIDs[parentIdx], child, valResults, "validation"))
			accepted++

			slog.InfoContext(ctx, "candidate accepted",
				"iteration", iteration,
				"stage", stageName,
				"parent_index", parentIdx,
				"candidate_index", childIdx,
				"minibatch_before", mean(before),
				"minibatch_after", mean(after),
				"val_score", mean(pool.Scores(childIdx)),
				"rollouts_used", rollouts.Used())

			if pool.Len() > o.opts.MaxCandidates {
				kept := pool.Prune(o.opts.MaxCandidates)
				remapped := make([]string, len(kept))
				for newIdx, oldIdx := range kept {
					remapped[newIdx] = recordIDs[oldIdx]
				}
				recordIDs = remapped

				slog.InfoContext(ctx, "pool pruned",
					"kept", pool.Len(),
					"max_candidates", o.opts.MaxCandidates)
				o.publish(&ports.ProgressEvent{
					Type:         ports.EventPoolPruned,
					RunID:        runID(run),
					Iteration:    iteration,
					RolloutsUsed: rollouts.Used(),
					Budget:       budget,
					PoolSize:     pool.Len(),
				})
			}

			o.publish(&ports.ProgressEvent{
				Type:           ports.EventCandidateAccepted,
				RunID:          runID(run),
				Iteration:      iteration,
				Stage:          stageName,
				RolloutsUsed:   rollouts.Used(),
				Budget:         budget,
				ParentIndex:    parentIdx,
				ParentScore:    mean(before),
				CandidateScore: mean(after),
				BestScore:      bestMean(pool),
				PoolSize:       pool.Len(),
			})
		} else {
			slog.DebugContext(ctx, "candidate rejected",
				"iteration", iteration,
				"stage", stageName,
				"parent_index", parentIdx,
				"minibatch_before", mean(before),
				"minibatch_after", mean(after))

			o.publish(&ports.ProgressEvent{
				Type:           ports.EventCandidateRejected,
				RunID:          runID(run),
				Iteration:      iteration,
				Stage:          stageName,
				RolloutsUsed:   rollouts.Used(),
				Budget:         budget,
				ParentIndex:    parentIdx,
				ParentScore:    mean(before),
				CandidateScore: mean(after),
				BestScore:      bestMean(pool),
				PoolSize:       pool.Len(),
			})
		}

		if iteration%o.opts.MergeFrequency == 0 {
			o.tryMerge(ctx, iteration)
		}

		o.updateRunProgress(ctx, run, iteration, rollouts.Used(), bestMean(pool))
	}

	result := o.buildResult(pool, run, iteration, accepted, rollouts)

	if run != nil && o.repo != nil {
		run.Iterations = iteration
		run.RolloutsUsed = rollouts.Used()
		run.MarkCompleted(result.BestScore)
		if err := o.repo.UpdateRun(ctx, run); err != nil {
			slog.WarnContext(ctx, "failed to record run completion",
				"run_id", run.ID, "error", err)
		}
	}

	slog.InfoContext(ctx, "optimization run finished",
		"run_id", result.RunID,
		"iterations", result.Iterations,
		"rollouts_used", result.RolloutsUsed,
		"accepted", result.Accepted,
		"pool_size", result.PoolSize,
		"best_index", result.BestIndex,
		"best_score", result.BestScore)

	o.publish(&ports.ProgressEvent{
		Type:         ports.EventRunCompleted,
		RunID:        result.RunID,
		Iteration:    result.Iterations,
		RolloutsUsed: result.RolloutsUsed,
		Budget:       budget,
		BestScore:    result.BestScore,
		PoolSize:     result.PoolSize,
	})

	return result, nil
}

// sampleMinibatch draws min(MinibatchSize, len(train)) distinct training
// examples using the run's seeded rng.
func (o *Optimizer) sampleMinibatch(train []models.Example) []models.Example {
	k := o.opts.MinibatchSize
	if k > len(train) {
		k = len(train)
	}
	batch := make([]models.Example, 0, k)
	for _, idx := range o.rng.Perm(len(train))[:k] {
		batch = append(batch, train[idx])
	}
	return batch
}

type exampleResult struct {
	score     float64
	success   bool
	latencyMs int64
}

// evaluateAll scores a candidate on every example, bounded by
// opts.Parallelism. Each result lands at its example's index, so the
// returned order does not depend on scheduling.
func (o *Optimizer) evaluateAll(ctx context.Context, candidate *models.Candidate, examples []models.Example) []exampleResult {
	results := make([]exampleResult, len(examples))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	for i, ex := range examples {
		g.Go(func() error {
			start := time.Now()
			score, err := o.harness.Evaluate(gCtx, candidate, ex)
			results[i] = exampleResult{
				score:     score,
				success:   err == nil,
				latencyMs: time.Since(start).Milliseconds(),
			}
			return nil
		})
	}
	_ = g.Wait() // workers never fail; execution errors score 0
	return results
}

// traceMinibatch runs the parent over the minibatch collecting per-example
// output, score, traces, and feedback as evidence for the mutator. Feedback
// is advisory: a failing generator yields an empty string.
func (o *Optimizer) traceMinibatch(ctx context.Context, candidate *models.Candidate, batch []models.Example, stageIndex int) []TraceSample {
	samples := make([]TraceSample, len(batch))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Parallelism)
	for i, ex := range batch {
		g.Go(func() error {
			output, traces, err := o.pipeline.ExecuteWithTraces(gCtx, candidate, ex.Input)
			if err != nil {
				slog.WarnContext(gCtx, "minibatch execution failed, scoring 0",
					"example", i, "error", err)
				samples[i] = TraceSample{Input: ex.Input, Output: map[string]any{}}
				return nil
			}
			sample := TraceSample{
				Input:  ex.Input,
				Output: output,
				Score:  o.harness.Score(output, ex.Expected),
				Traces: traces,
			}
			if o.feedback != nil {
				fb, fbErr := o.feedback.GenerateFeedback(gCtx, output, ex.Expected, traces, stageIndex)
				if fbErr != nil {
					slog.WarnContext(gCtx, "feedback generation failed, continuing without",
						"stage_index", stageIndex, "error", fbErr)
				} else {
					sample.Feedback = fb
				}
			}
			samples[i] = sample
			return nil
		})
	}
	_ = g.Wait()
	return samples
}

// tryMerge is the crossover slot in the search schedule. Merging Pareto
// survivors is not implemented; the hook keeps the cadence observable.
func (o *Optimizer) tryMerge(ctx context.Context, iteration int) {
	slog.DebugContext(ctx, "merge attempt skipped", "iteration", iteration)
}

func (o *Optimizer) startRun(ctx context.Context, budget, nTrain, nVal int) (*models.OptimizationRun, error) {
	if o.repo == nil || o.ids == nil {
		return nil, nil
	}
	run := models.NewOptimizationRun(o.ids.GenerateRunID(), o.opts.RunName, budget, o.opts.Seed)
	run.TrainExamples = nTrain
	run.ValExamples = nVal
	run.Config["minibatch_size"] = o.opts.MinibatchSize
	run.Config["merge_frequency"] = o.opts.MergeFrequency
	run.Config["max_candidates"] = o.opts.MaxCandidates
	run.Config["ancestor_depth"] = o.opts.AncestorDepth
	run.Config["parallelism"] = o.opts.Parallelism
	if err := o.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create optimization run: %w", err)
	}
	return run, nil
}

// recordCandidate persists a pooled candidate and its per-example
// evaluations, returning the record ID children will reference as their
// parent. Storage failures are logged; the ID stays usable either way.
func (o *Optimizer) recordCandidate(ctx context.Context, run *models.OptimizationRun, iteration int, parentRecordID string, candidate *models.Candidate, results []exampleResult, phase string) string {
	if o.repo == nil || run == nil {
		return ""
	}
	rec := models.NewCandidateRecord(o.ids.GenerateCandidateID(), run.ID, iteration, parentRecordID, candidate, scoresOf(results))
	if err := o.repo.SaveCandidate(ctx, rec); err != nil {
		slog.WarnContext(ctx, "failed to save candidate",
			"candidate_id", rec.ID, "error", err)
		return rec.ID
	}
	for i, res := range results {
		eval := models.NewEvaluationRecord(o.ids.GenerateEvaluationID(), rec.ID, run.ID, i, phase, res.score, res.success, res.latencyMs)
		if err := o.repo.SaveEvaluation(ctx, eval); err != nil {
			slog.WarnContext(ctx, "failed to save evaluation",
				"candidate_id", rec.ID, "example_index", i, "error", err)
			return rec.ID
		}
	}
	return rec.ID
}

func (o *Optimizer) updateRunProgress(ctx context.Context, run *models.OptimizationRun, iterations, rolloutsUsed int, bestScore float64) {
	if o.repo == nil || run == nil {
		return
	}
	run.Iterations = iterations
	run.RolloutsUsed = rolloutsUsed
	run.BestScore = bestScore
	run.UpdatedAt = time.Now().UTC()
	if err := o.repo.UpdateRun(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to update run progress",
			"run_id", run.ID, "error", err)
	}
}

// failRun records a terminal failure. The update runs on a detached context
// so a cancelled run still gets its status persisted.
func (o *Optimizer) failRun(ctx context.Context, run *models.OptimizationRun, cause error) {
	slog.ErrorContext(ctx, "optimization run failed", "run_id", runID(run), "error", cause)
	if run != nil && o.repo != nil {
		run.MarkFailed(cause.Error())
		updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.repo.UpdateRun(updateCtx, run); err != nil {
			slog.WarnContext(ctx, "failed to record run failure",
				"run_id", run.ID, "error", err)
		}
	}
	o.publish(&ports.ProgressEvent{
		Type:    ports.EventRunFailed,
		RunID:   runID(run),
		Message: cause.Error(),
	})
}

func (o *Optimizer) buildResult(pool *CandidatePool, run *models.OptimizationRun, iterations, accepted int, rollouts *RolloutBudget) *Result {
	best := pool.BestIndex()
	return &Result{
		Best:         pool.Candidate(best),
		BestIndex:    best,
		BestScore:    mean(pool.Scores(best)),
		Iterations:   iterations,
		RolloutsUsed: rollouts.Used(),
		Accepted:     accepted,
		PoolSize:     pool.Len(),
		RunID:        runID(run),
	}
}

func (o *Optimizer) publish(event *ports.ProgressEvent) {
	if o.progress == nil {
		return
	}
	event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	o.progress.Publish(event)
}

func bestMean(pool *CandidatePool) float64 {
	best := pool.BestIndex()
	if best == NoParent {
		return 0
	}
	return mean(pool.Scores(best))
}

func scoresOf(results []exampleResult) []float64 {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.score
	}
	return scores
}

func sampleScores(samples []TraceSample) []float64 {
	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.Score
	}
	return scores
}

func runID(run *models.OptimizationRun) string {
	if run == nil {
		return ""
	}
	return run.ID
}
