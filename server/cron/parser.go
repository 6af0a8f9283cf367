package cron

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	triggerSeparator   = ";"
	stageSeparator     = ":"
	stageListSeparator = ","
)

// TriggerSpec is a cron schedule and the stages it runs.
type TriggerSpec struct {
	Stages   []string
	CronSpec string
}

// ParseTriggerSpecs parses a multi-trigger string into individual trigger specs.
// The format is: stage1,stage2:cron_expression;stage3:cron_expression2
//
// Example:
//
//	"ingest,evaluate:*/15 * * * *;evaluate:0 9 * * 1"
//
// Returns an error if:
//   - Any trigger is missing stages or cron expression
//   - Any stage name is not in availableStages
//   - Any cron expression is invalid
//   - Any trigger has duplicate stages
func ParseTriggerSpecs(spec string, availableStages []string) ([]TriggerSpec, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, errors.New("cron spec cannot be empty")
	}

	triggerStrs := strings.Split(spec, triggerSeparator)
	specs := make([]TriggerSpec, 0, len(triggerStrs))

	for _, triggerStr := range triggerStrs {
		triggerStr = strings.TrimSpace(triggerStr)
		if triggerStr == "" {
			continue
		}

		triggerSpec, err := parseSingleTrigger(triggerStr, availableStages)
		if err != nil {
			return nil, err
		}
		specs = append(specs, triggerSpec)
	}

	if len(specs) == 0 {
		return nil, errors.New("no valid triggers found in cron spec")
	}

	return specs, nil
}

func parseSingleTrigger(triggerStr string, availableStages []string) (TriggerSpec, error) {
	parts := strings.Split(triggerStr, stageSeparator)
	if len(parts) != 2 {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: expected format 'stages:cron', got '%s'", triggerStr)
	}

	stagesStr := strings.TrimSpace(parts[0])
	cronSpec := strings.TrimSpace(parts[1])

	if stagesStr == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing stages in '%s'", triggerStr)
	}
	if cronSpec == "" {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: missing cron schedule in '%s'", triggerStr)
	}

	spec := TriggerSpec{
		Stages:   strings.Split(stagesStr, stageListSeparator),
		CronSpec: cronSpec,
	}
	if err := spec.normalize(availableStages); err != nil {
		return TriggerSpec{}, fmt.Errorf("invalid trigger spec: %w in '%s'", err, triggerStr)
	}
	return spec, nil
}

// Validate checks the stages and cron expression of a spec built from config.
func (s *TriggerSpec) Validate(availableStages []string) error {
	s.CronSpec = strings.TrimSpace(s.CronSpec)
	if s.CronSpec == "" {
		return errors.New("missing cron schedule")
	}
	return s.normalize(availableStages)
}

// normalize trims stage names, drops empty ones and checks the result.
func (s *TriggerSpec) normalize(availableStages []string) error {
	stages := make([]string, 0, len(s.Stages))
	for _, stage := range s.Stages {
		stage = strings.TrimSpace(stage)
		if stage == "" {
			continue
		}
		if slices.Contains(stages, stage) {
			return fmt.Errorf("duplicate stage '%s'", stage)
		}
		if !slices.Contains(availableStages, stage) {
			return fmt.Errorf("unknown stage '%s' (available: %s)", stage, strings.Join(availableStages, ", "))
		}
		stages = append(stages, stage)
	}
	if len(stages) == 0 {
		return errors.New("no valid stages")
	}

	if _, err := specParser.Parse(s.CronSpec); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	s.Stages = stages
	return nil
}
