package runner

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"drydock/events"
	"drydock/pipeline"
)

// Scheduler watches project pipelines and starts runs for their trigger
// definitions (interval or daily wall-clock time)
type Scheduler struct {
	projectsConfig *ProjectsConfig
	engine         *Engine
	broker         *events.Broker
	baseDir        string
	stopChan       chan struct{}
	lastRuns       map[string]time.Time // track last execution per trigger
	mu             sync.RWMutex         // protect lastRuns map
	runningJobs    map[string]bool      // track currently running triggers
}

// NewScheduler creates a new scheduler instance
func NewScheduler(projectsConfig *ProjectsConfig, engine *Engine, broker *events.Broker, baseDir string) *Scheduler {
	return &Scheduler{
		projectsConfig: projectsConfig,
		engine:         engine,
		broker:         broker,
		baseDir:        baseDir,
		stopChan:       make(chan struct{}),
		lastRuns:       make(map[string]time.Time),
		runningJobs:    make(map[string]bool),
	}
}

// Start begins the scheduler loop
func (s *Scheduler) Start() {
	log.Println("📅 Scheduler started")
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	// Run tick immediately on start
	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			log.Println("📅 Scheduler stopped")
			return
		}
	}
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
}

// tick checks all triggers and starts runs if needed
func (s *Scheduler) tick() {
	for _, project := range s.projectsConfig.Projects {
		configPath := project.PipelinePath(s.baseDir)

		p, err := pipeline.Load(configPath)
		if err != nil {
			// Skip if the pipeline can't be loaded right now
			continue
		}

		if len(p.Triggers) == 0 {
			continue
		}

		for i, trigger := range p.Triggers {
			triggerKey := fmt.Sprintf("%s-trigger-%d", project.Name, i)

			s.mu.RLock()
			lastRun := s.lastRuns[triggerKey]
			isRunning := s.runningJobs[triggerKey]
			s.mu.RUnlock()

			// Skip if already running
			if isRunning {
				continue
			}

			if !s.shouldRun(trigger, lastRun) {
				continue
			}

			// Validate referenced stages exist
			valid := true
			for _, stageName := range trigger.Stages {
				if p.Stage(stageName) == nil {
					log.Printf("⚠️  Trigger skipped: stage '%s' not found in %s", stageName, project.Name)
					valid = false
				}
			}
			if !valid {
				continue
			}

			s.mu.Lock()
			s.runningJobs[triggerKey] = true
			s.lastRuns[triggerKey] = time.Now()
			s.mu.Unlock()

			go func(proj Project, trig pipeline.Trigger, key string) {
				s.executeTrigger(proj.Name, trig)

				s.mu.Lock()
				delete(s.runningJobs, key)
				s.mu.Unlock()
			}(project, trigger, triggerKey)
		}
	}
}

// shouldRun determines if a trigger should fire now
func (s *Scheduler) shouldRun(trigger pipeline.Trigger, lastRun time.Time) bool {
	now := time.Now()

	// Time-based trigger (at: "HH:MM")
	if trigger.At != "" {
		hour, minute, err := parseAtTime(trigger.At)
		if err != nil {
			log.Printf("⚠️  Invalid time format '%s': %v", trigger.At, err)
			return false
		}

		if now.Hour() == hour && now.Minute() == minute {
			// Only fire once per day at this time
			if lastRun.IsZero() || now.Sub(lastRun) >= 23*time.Hour {
				return true
			}
		}
		return false
	}

	// Interval-based trigger (every: "1h", "30m", etc.)
	if trigger.Every != "" {
		interval, err := time.ParseDuration(trigger.Every)
		if err != nil {
			log.Printf("⚠️  Invalid interval format '%s': %v", trigger.Every, err)
			return false
		}

		if lastRun.IsZero() || now.Sub(lastRun) >= interval {
			return true
		}
		return false
	}

	return false
}

// executeTrigger starts pipeline runs for one fired trigger
func (s *Scheduler) executeTrigger(projectName string, trigger pipeline.Trigger) {
	project, err := s.projectsConfig.GetProject(projectName)
	if err != nil {
		log.Printf("❌ Trigger execution failed: %v", err)
		return
	}

	configPath := project.PipelinePath(s.baseDir)
	stagesStr := "all stages"
	if len(trigger.Stages) > 0 {
		stagesStr = strings.Join(trigger.Stages, ", ")
	}

	triggerType := trigger.At
	if triggerType == "" {
		triggerType = trigger.Every
	}

	log.Printf("⏰ Trigger fired: %s (stages: %s) - %s", projectName, stagesStr, triggerType)

	s.broker.Broadcast("run_triggered", map[string]interface{}{
		"pipeline": projectName,
		"stages":   trigger.Stages,
		"type":     "scheduled",
	})

	run := func(stageFilter string) {
		p, err := pipeline.Load(configPath)
		if err != nil {
			log.Printf("❌ Scheduled run failed for %s: %v", projectName, err)
			return
		}
		result, err := s.engine.Run(context.Background(), p, Options{
			ConfigPath:  configPath,
			StageFilter: stageFilter,
		})
		if err != nil {
			log.Printf("❌ Scheduled run failed for %s: %v", projectName, err)
			return
		}
		if result.Status == pipeline.StatusSucceeded {
			log.Printf("✅ Scheduled run completed: %s", projectName)
		} else {
			log.Printf("❌ Scheduled run ended %s for %s", result.Status, projectName)
		}
	}

	// If no stages specified, run the whole pipeline
	if len(trigger.Stages) == 0 {
		run("")
		return
	}

	for _, stageName := range trigger.Stages {
		run(stageName)
	}
}

// parseAtTime parses "HH:MM" format
func parseAtTime(at string) (hour, minute int, err error) {
	parts := strings.Split(at, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format, expected HH:MM")
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour")
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute")
	}

	return hour, minute, nil
}
