package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/markconsensus/consensus"
	"github.com/kwv/markconsensus/reducers"
)

// App encapsulates the application state and dependencies
type App struct {
	Engine *consensus.Engine
	Config *consensus.FileConfig
	Out    io.Writer

	// newClient connects the publisher; replaced in tests.
	newClient func(consensus.MQTTConfig) (mqtt.Client, error)

	// CLI Flags (effectively dependencies)
	ConfigFile string
	InputFile  string
	OutputFile string
	RenderFile string
	Frame      string
	Tool       string
	Subject    string
	Publish    bool

	// WriteConfig receives the effective configuration after a reduce.
	WriteConfig string
}

// NewApp creates a new App with the built-in sub-reducers registered.
func NewApp() *App {
	return &App{
		Engine:    consensus.NewEngine(reducers.Catalog()),
		Out:       os.Stdout,
		newClient: consensus.NewMQTTClient,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.InputFile = opts.InputFile
	a.OutputFile = opts.OutputFile
	a.RenderFile = opts.RenderFile
	a.Frame = opts.Frame
	a.Tool = opts.Tool
	a.Subject = opts.Subject
	a.Publish = opts.Publish
	a.WriteConfig = opts.WriteConfig
}

// RunListShapes prints every supported shape with its parameters.
func (a *App) RunListShapes() {
	for _, name := range consensus.ShapeNames() {
		shape, err := consensus.LookupShape(name)
		if err != nil {
			continue
		}
		params := "boundary points"
		if !consensus.IsPolygonShape(shape) {
			params = strings.Join(shape.Params(), ", ")
		}
		fmt.Fprintf(a.Out, "  %-26s %s\n", name, params)
	}
}

// RunReduce loads the input, reduces it and writes, renders and publishes
// the record as requested.
func (a *App) RunReduce() error {
	req, err := consensus.LoadRequest(a.InputFile)
	if err != nil {
		return err
	}
	if a.ConfigFile != "" {
		cfg, err := consensus.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		a.Config = cfg
		req.Config = cfg.Reducer
	}

	log.Printf("Reducing %d frame(s) from %s (shape %s)", len(req.Frames), a.InputFile, req.Config.Shape)
	rec, err := a.Engine.Reduce(*req)
	if err != nil {
		return fmt.Errorf("reducing %s: %w", a.InputFile, err)
	}
	a.logSummary(rec)

	if err := a.writeRecord(rec); err != nil {
		return err
	}
	if a.WriteConfig != "" {
		if err := a.saveConfig(req.Config); err != nil {
			return err
		}
	}
	if a.RenderFile != "" {
		if err := a.render(rec); err != nil {
			return err
		}
	}
	if a.Publish {
		return a.publish(rec)
	}
	return nil
}

// saveConfig writes the reducer config with defaults filled in, together
// with any MQTT settings that were loaded.
func (a *App) saveConfig(cfg consensus.Config) error {
	out := &consensus.FileConfig{Reducer: cfg.WithDefaults()}
	if a.Config != nil {
		out.MQTT = a.Config.MQTT
	}
	if err := consensus.SaveConfig(a.WriteConfig, out); err != nil {
		return err
	}
	log.Printf("Wrote effective config to %s", a.WriteConfig)
	return nil
}

func (a *App) logSummary(rec *consensus.ConsensusRecord) {
	for _, frame := range sortedKeys(rec.Frames) {
		for _, tool := range sortedKeys(rec.Frames[frame]) {
			res := rec.Frames[frame][tool]
			clusters := len(res.Clusters)
			if res.Contours != nil {
				clusters = len(res.Contours)
			}
			log.Printf("Frame %s tool %s: %d mark(s), %d cluster(s)", frame, tool, len(res.Labels), clusters)
		}
	}
}

func (a *App) writeRecord(rec *consensus.ConsensusRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	data = append(data, '\n')

	if a.OutputFile == "" || a.OutputFile == "-" {
		_, err := a.Out.Write(data)
		return err
	}
	if err := os.WriteFile(a.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	log.Printf("Wrote %s", a.OutputFile)
	return nil
}

// selectResult picks the tool result to render, defaulting to the first
// frame and tool in sorted order.
func (a *App) selectResult(rec *consensus.ConsensusRecord) (*consensus.ToolResult, error) {
	frame := a.Frame
	if frame == "" {
		frames := sortedKeys(rec.Frames)
		if len(frames) == 0 {
			return nil, fmt.Errorf("record has no frames")
		}
		frame = frames[0]
	}
	tools, ok := rec.Frames[frame]
	if !ok {
		return nil, fmt.Errorf("frame %s not found", frame)
	}
	tool := a.Tool
	if tool == "" {
		names := sortedKeys(tools)
		if len(names) == 0 {
			return nil, fmt.Errorf("frame %s has no tools", frame)
		}
		tool = names[0]
	}
	res, ok := tools[tool]
	if !ok {
		return nil, fmt.Errorf("tool %s not found in frame %s", tool, frame)
	}
	return res, nil
}

func (a *App) render(rec *consensus.ConsensusRecord) error {
	res, err := a.selectResult(rec)
	if err != nil {
		return err
	}

	f, err := os.Create(a.RenderFile)
	if err != nil {
		return fmt.Errorf("creating render file: %w", err)
	}
	defer f.Close()

	r := consensus.NewRenderer(res)
	switch strings.ToLower(filepath.Ext(a.RenderFile)) {
	case ".png":
		err = r.RenderToPNG(f)
	default:
		err = r.RenderToSVG(f)
	}
	if err != nil {
		return fmt.Errorf("rendering %s: %w", a.RenderFile, err)
	}
	log.Printf("Rendered tool %s to %s", res.Tool, a.RenderFile)
	return nil
}

func (a *App) publish(rec *consensus.ConsensusRecord) error {
	var cfg consensus.MQTTConfig
	if a.Config != nil {
		cfg = a.Config.MQTT
	}
	client, err := a.newClient(cfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	pub := consensus.NewPublisher(client, cfg.PublishPrefix)
	if cfg.QoS != nil {
		pub.SetQoS(byte(*cfg.QoS))
	}
	if cfg.Retain != nil {
		pub.SetRetain(*cfg.Retain)
	}
	if _, err := pub.PublishRecord(a.Subject, rec); err != nil {
		return err
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
