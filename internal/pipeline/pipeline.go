// Package pipeline runs the six-stage assessment pipeline: strictly
// sequential stages, content-hash caching, and per-stage failure
// containment so one stage's error never aborts the run.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/SirClappington/resq/internal/adapter"
	"github.com/SirClappington/resq/internal/cache"
	"github.com/SirClappington/resq/internal/domain"
	"github.com/SirClappington/resq/internal/parser"
	"github.com/SirClappington/resq/internal/storage"
)

// Persister is the slice of the repository the pipeline needs.
type Persister interface {
	CreateAssessment(ctx context.Context, rec *storage.Record) (string, error)
}

type Orchestrator struct {
	runner adapter.StageRunner
	cache  cache.Cache
	repo   Persister
	log    *zap.Logger
	ttl    time.Duration
}

func New(runner adapter.StageRunner, c cache.Cache, repo Persister, log *zap.Logger, ttl time.Duration) *Orchestrator {
	return &Orchestrator{runner: runner, cache: c, repo: repo, log: log, ttl: ttl}
}

// Run executes all stages in order and assembles the final assessment.
// It never fails: stage errors are contained into degraded results and a
// persistence failure only leaves the assessment id unset.
func (o *Orchestrator) Run(ctx context.Context, job, resume map[string]any, seed int64) *domain.Assessment {
	if job == nil {
		job = map[string]any{}
	}
	if resume == nil {
		resume = map[string]any{}
	}

	stages := make(map[string]domain.StageResult, len(domain.StageOrder))
	for _, stage := range domain.StageOrder {
		stages[stage] = o.runStage(ctx, stage, job, resume, stages, seed)
	}

	finalScore, _ := stages[domain.StageMatcherScore].Number("score")
	a := &domain.Assessment{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Stages:     stages,
		FinalScore: finalScore,
		JobID:      str(job["job_id"]),
		ResumeID:   str(resume["resume_id"]),
		Meta: map[string]any{
			"seed":       seed,
			"job_source": job["source_url"],
			"company":    job["company"],
			"role_title": stages[domain.StageJDExtract]["role_title"],
		},
	}

	o.persist(ctx, a, job, resume)
	return a
}

func (o *Orchestrator) persist(ctx context.Context, a *domain.Assessment, job, resume map[string]any) {
	if o.repo == nil {
		return
	}
	results, err := json.Marshal(a)
	if err != nil {
		o.log.Error("encoding assessment for persistence", zap.Error(err))
		return
	}
	userID := str(job["user_id"])
	if userID == "" {
		userID = str(resume["user_id"])
	}
	id, err := o.repo.CreateAssessment(ctx, &storage.Record{
		UserID:     userID,
		JobID:      a.JobID,
		ResumeID:   a.ResumeID,
		FinalScore: a.FinalScore,
		Results:    results,
	})
	if err != nil {
		// best-effort: the caller still gets the full result
		o.log.Error("persisting assessment", zap.Error(err))
		return
	}
	a.AssessmentID = &id
}

// runStage builds the stage input from prior outputs and executes it
// through the cache. Stage C bypasses the adapter when extracted resume
// text is available.
func (o *Orchestrator) runStage(ctx context.Context, stage string, job, resume map[string]any, prior map[string]domain.StageResult, seed int64) domain.StageResult {
	switch stage {
	case domain.StageJDNormalize:
		content := str(job["raw_text"])
		if content == "" {
			content = str(job["content"])
		}
		cfg, ok := job["config"]
		if !ok {
			cfg = map[string]any{"infer_ats": true}
		}
		return o.withCache(ctx, stage, map[string]any{
			"content":    content,
			"source_url": job["source_url"],
			"company":    job["company"],
			"config":     cfg,
		}, seed)

	case domain.StageJDExtract:
		prev := prior[domain.StageJDNormalize]
		cleaned := str(prev["cleaned_text"])
		if cleaned == "" {
			cleaned = str(job["raw_text"])
		}
		candidates, _ := prev["ats_candidates"].([]any)
		if candidates == nil {
			candidates = []any{}
		}
		var platform any
		if len(candidates) > 0 {
			if first, ok := candidates[0].(map[string]any); ok {
				platform = first["name"]
			}
		}
		return o.withCache(ctx, stage, map[string]any{
			"cleaned_text":   cleaned,
			"ats_candidates": candidates,
			"config":         map[string]any{"platform": platform, "prioritize_ats_keywords": true},
		}, seed)

	case domain.StageResumeParse:
		return o.parseResume(ctx, resume, seed)

	case domain.StageMatcherScore:
		cfg, ok := job["scoring_config"]
		if !ok {
			cfg = map[string]any{}
		}
		return o.withCache(ctx, stage, map[string]any{
			"jd":     map[string]any(prior[domain.StageJDExtract]),
			"resume": map[string]any(prior[domain.StageResumeParse]),
			"config": cfg,
		}, seed)

	case domain.StageRecommend:
		cfg, ok := job["recommend_config"]
		if !ok {
			cfg = map[string]any{}
		}
		return o.withCache(ctx, stage, map[string]any{
			"score":  prior[domain.StageMatcherScore]["score"],
			"jd":     map[string]any(prior[domain.StageJDExtract]),
			"resume": map[string]any(prior[domain.StageResumeParse]),
			"config": cfg,
		}, seed)

	case domain.StageLatexAdapt:
		template := str(job["template"])
		if template == "" {
			template = "onepage"
		}
		return o.withCache(ctx, stage, map[string]any{
			"recommendation": map[string]any(prior[domain.StageRecommend]),
			"template":       template,
		}, seed)

	default:
		return o.withCache(ctx, stage, map[string]any{}, seed)
	}
}

// parseResume handles the stage C special case: inline extracted text is
// parsed deterministically, bypassing the adapter, but still written
// through the cache under the same key scheme.
func (o *Orchestrator) parseResume(ctx context.Context, resume map[string]any, seed int64) domain.StageResult {
	layout, _ := resume["original_layout"].(map[string]any)
	if layout == nil {
		layout = map[string]any{}
	}
	fileText := str(resume["file_text"])
	if fileText == "" {
		return o.withCache(ctx, domain.StageResumeParse, map[string]any{
			"file_text":       "",
			"original_layout": layout,
		}, seed)
	}

	key := cache.Key(domain.StageResumeParse, map[string]any{
		"file_text":       fileText,
		"original_layout": layout,
	}, seed)
	if res, ok := o.cacheGet(ctx, key); ok {
		return res
	}
	res := o.execute(ctx, domain.StageResumeParse, nil, seed, func() (domain.StageResult, error) {
		return parser.ParseResumeText(fileText, layout), nil
	})
	return o.cachePut(ctx, key, res)
}

// withCache runs one stage through lookup / execute / best-effort write.
func (o *Orchestrator) withCache(ctx context.Context, stage string, payload map[string]any, seed int64) domain.StageResult {
	key := cache.Key(stage, payload, seed)
	if res, ok := o.cacheGet(ctx, key); ok {
		return res
	}
	res := o.execute(ctx, stage, payload, seed, nil)
	return o.cachePut(ctx, key, res)
}

// execute invokes the runner (or the given direct fn) and contains any
// failure, panics included, into a terminal stage result.
func (o *Orchestrator) execute(ctx context.Context, stage string, payload map[string]any, seed int64, direct func() (domain.StageResult, error)) (out domain.StageResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("stage panicked", zap.String("stage", stage), zap.Any("panic", r))
			out = domain.ErrorResult(errors.Errorf("stage %s panicked: %v", stage, r))
		}
	}()
	var (
		res domain.StageResult
		err error
	)
	if direct != nil {
		res, err = direct()
	} else {
		res, err = o.runner.RunStage(ctx, stage, payload, seed)
	}
	if err != nil {
		o.log.Warn("stage failed", zap.String("stage", stage), zap.Error(err))
		return domain.ErrorResult(err)
	}
	if _, ok := res["confidence"]; !ok {
		res["confidence"] = 0.8
	}
	return res
}

func (o *Orchestrator) cacheGet(ctx context.Context, key string) (domain.StageResult, bool) {
	if o.cache == nil {
		return nil, false
	}
	raw, ok, err := o.cache.Get(ctx, key)
	if err != nil {
		o.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var res domain.StageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// a corrupt entry is treated as a miss and recomputed
		o.log.Debug("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return res, true
}

// cachePut normalizes the result through its JSON encoding (so cached and
// fresh results are indistinguishable) and writes it best-effort.
func (o *Orchestrator) cachePut(ctx context.Context, key string, res domain.StageResult) domain.StageResult {
	raw, err := json.Marshal(res)
	if err != nil {
		o.log.Debug("stage result not serializable", zap.String("key", key), zap.Error(err))
		return res
	}
	var normalized domain.StageResult
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return res
	}
	if o.cache != nil {
		if err := o.cache.Set(ctx, key, raw, o.ttl); err != nil {
			o.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return normalized
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
