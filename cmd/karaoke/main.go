// Command karaoke inspects and edits karaoke timing documents and serves
// shared edit sessions over HTTP.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/natefinch/atomic"

	"github.com/FocuswithJustin/soramimi/core/document"
	"github.com/FocuswithJustin/soramimi/core/encoding"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
	"github.com/FocuswithJustin/soramimi/core/timing"
	"github.com/FocuswithJustin/soramimi/internal/api"
	"github.com/FocuswithJustin/soramimi/internal/config"
	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/session"
	"github.com/FocuswithJustin/soramimi/internal/store"
	"github.com/FocuswithJustin/soramimi/internal/validation"
)

const version = "0.1.0"

// stdout receives command output. Replaceable in tests.
var stdout io.Writer = os.Stdout

// CLI defines the command-line interface for karaoke.
type CLI struct {
	config.Config `embed:""`

	Show      ShowCmd      `cmd:"" help:"Print the lines and syllables of a document"`
	Normalize NormalizeCmd `cmd:"" help:"Rewrite every line in canonical form"`
	Convert   ConvertCmd   `cmd:"" help:"Convert a read-only document to editable timing text"`
	Edit      EditCmd      `cmd:"" help:"Apply JSON edits to a document"`
	At        AtCmd        `cmd:"" help:"Show the syllable sung at a playback time"`
	Shift     ShiftCmd     `cmd:"" help:"Move every timecode by an offset"`
	Store     StoreGroup   `cmd:"" help:"Document store operations"`
	Serve     ServeCmd     `cmd:"" help:"Start the HTTP and WebSocket edit server"`
	Version   VersionCmd   `cmd:"" help:"Print version information"`
}

// StoreGroup contains document store operations.
type StoreGroup struct {
	List StoreListCmd `cmd:"" help:"List stored documents"`
	Get  StoreGetCmd  `cmd:"" help:"Print a stored document"`
	Put  StorePutCmd  `cmd:"" help:"Store a local file"`
}

// Input names a local document and how to decode it.
type Input struct {
	Path    string `arg:"" help:"Document path" type:"existingfile"`
	Charset string `help:"Force a text encoding (utf-8, windows-1252, shift_jis)"`
}

// Output controls where a rewritten document goes.
type Output struct {
	Output  string `short:"o" help:"Write the result to this file instead of stdout" type:"path"`
	InPlace bool   `short:"i" name:"in-place" help:"Overwrite the input file"`
}

func (in Input) load() (*document.Document, error) {
	charset, err := encoding.ParseCharset(in.Charset)
	if err != nil {
		return nil, errors.NewValidation("charset", err.Error())
	}
	f, err := os.Open(in.Path)
	if err != nil {
		return nil, errors.NewIO("open", in.Path, err)
	}
	defer f.Close()
	data, err := validation.ReadDocument(f)
	if err != nil {
		return nil, &errors.ValidationError{Field: "path", Value: in.Path, Message: err.Error(), Err: errors.ErrInvalidInput}
	}
	doc, err := document.Load(data, document.Options{Charset: charset})
	if err != nil {
		return nil, err
	}
	logging.DocumentLoaded(in.Path, doc.Kind.String(), doc.Song.LineCount())
	return doc, nil
}

// write renders doc to the selected destination.
func (out Output) write(doc *document.Document, src string) error {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	dest := out.Output
	if out.InPlace {
		if dest != "" {
			return errors.NewValidation("output", "--output and --in-place are exclusive")
		}
		dest = src
	}
	if dest == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := atomic.WriteFile(dest, bytes.NewReader(data)); err != nil {
		return errors.NewIO("write", dest, err)
	}
	return nil
}

// editable loads the input, converting read-only formats when convert is
// set.
func editable(in Input, convert bool) (*document.Document, error) {
	doc, err := in.load()
	if err != nil {
		return nil, err
	}
	if doc.Kind != document.KindSoramimi && convert {
		doc = document.ToEditable(doc)
	}
	return doc, nil
}

// applyEdits runs edits against doc in order.
func applyEdits(doc *document.Document, edits []session.Edit) error {
	for i, e := range edits {
		ch, err := e.Apply(doc.Song)
		if err != nil {
			return errors.Wrapf(err, "edit %d (%s)", i+1, e.Op)
		}
		logging.EditApplied("cli", string(e.Op), ch.FirstLine, ch.LinesRemoved, ch.LinesInserted)
	}
	return nil
}

// ShowCmd prints a document.
type ShowCmd struct {
	Input
	Raw  bool `help:"Print the raw text only"`
	JSON bool `name:"json" help:"Print the structured view as JSON"`
}

func (c *ShowCmd) Run() error {
	doc, err := c.load()
	if err != nil {
		return err
	}
	switch {
	case c.Raw:
		_, err = fmt.Fprintln(stdout, doc.Song.Raw())
		return err
	case c.JSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(lineViews(doc.Song))
	}

	mode := "editable"
	if !doc.Song.Editable() {
		mode = "read-only"
	}
	fmt.Fprintf(stdout, "%s (%s, %s, %d lines)\n", c.Path, doc.Kind, mode, doc.Song.LineCount())
	for i, l := range doc.Song.Lines() {
		syllables := l.Syllables()
		if len(syllables) == 0 {
			fmt.Fprintf(stdout, "%4d  %-25s %q\n", i, "-", l.Raw())
			continue
		}
		parts := make([]string, len(syllables))
		for j, s := range syllables {
			parts[j] = fmt.Sprintf("%s%q", s.Start(), s.Text())
		}
		fmt.Fprintf(stdout, "%4d  %s-%s %s%s\n", i, l.Start(), l.End(), l.Prefix(), strings.Join(parts, " "))
	}
	return nil
}

func lineViews(song lyrics.Song) []session.LineView {
	out := make([]session.LineView, 0, song.LineCount())
	for _, l := range song.Lines() {
		lv := session.LineView{Raw: l.Raw(), Prefix: l.Prefix(), Syllables: []session.SyllableView{}}
		for _, s := range l.Syllables() {
			lv.Syllables = append(lv.Syllables, session.SyllableView{
				Text:  s.Text(),
				Start: s.Start().String(),
				End:   s.End().String(),
			})
		}
		out = append(out, lv)
	}
	return out
}

// NormalizeCmd rewrites every line from its syllables.
type NormalizeCmd struct {
	Input
	Output
}

func (c *NormalizeCmd) Run() error {
	doc, err := editable(c.Input, false)
	if err != nil {
		return err
	}
	if err := applyEdits(doc, []session.Edit{{Op: session.OpNormalize}}); err != nil {
		return err
	}
	return c.write(doc, c.Path)
}

// ConvertCmd turns a read-only document into editable timing text.
type ConvertCmd struct {
	Input
	Output
}

func (c *ConvertCmd) Run() error {
	doc, err := editable(c.Input, true)
	if err != nil {
		return err
	}
	return c.write(doc, c.Path)
}

// EditCmd applies edits given as JSON objects, for example
// {"op":"set_start","line":0,"syllable":1,"time":"0:12.5"}.
type EditCmd struct {
	Input
	Edits []string `arg:"" name:"edit" help:"Edits as JSON objects, applied in order"`
	Output
}

func (c *EditCmd) Run() error {
	edits := make([]session.Edit, len(c.Edits))
	for i, raw := range c.Edits {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&edits[i]); err != nil {
			return errors.NewValidation("edit", fmt.Sprintf("edit %d: %v", i+1, err))
		}
	}
	doc, err := editable(c.Input, false)
	if err != nil {
		return err
	}
	if err := applyEdits(doc, edits); err != nil {
		return err
	}
	return c.write(doc, c.Path)
}

// ShiftCmd moves every set timecode.
type ShiftCmd struct {
	Input
	By string `required:"" help:"Signed offset such as 1.5, -0:02 or [00:01:00]; use --by=-1 for negative values"`
	Output
}

func (c *ShiftCmd) Run() error {
	doc, err := editable(c.Input, false)
	if err != nil {
		return err
	}
	if err := applyEdits(doc, []session.Edit{{Op: session.OpShift, Time: c.By}}); err != nil {
		return err
	}
	return c.write(doc, c.Path)
}

// AtCmd reports the syllable being sung at a time.
type AtCmd struct {
	Input
	Time string `arg:"" help:"Playback time such as 12.5, 1:16.02 or [01:16:02]"`
}

func (c *AtCmd) Run() error {
	t, err := timecode.ParseOffset(c.Time)
	if err != nil {
		return errors.NewValidation("time", err.Error())
	}
	doc, err := c.load()
	if err != nil {
		return err
	}
	w, active, ok := timing.New(doc.Song).At(t)
	if !ok {
		fmt.Fprintf(stdout, "%s: before the first syllable\n", t)
		return nil
	}
	text := ""
	if l, found := doc.Song.Line(w.Line); found {
		if syllables := l.Syllables(); w.Syllable < len(syllables) {
			text = syllables[w.Syllable].Text()
		}
	}
	state := "active"
	if !active {
		state = "ended"
	}
	end := w.End.String()
	if w.End == timecode.Max {
		end = "end"
	}
	fmt.Fprintf(stdout, "%s: line %d syllable %d %q %s-%s (%s)\n", t, w.Line, w.Syllable, text, w.Start, end, state)
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(context.Background(), cfg.Store)
}

// StoreListCmd lists stored documents.
type StoreListCmd struct{}

func (c *StoreListCmd) Run(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	names, err := st.List(context.Background())
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(stdout, name)
	}
	return nil
}

// StoreGetCmd prints a stored document.
type StoreGetCmd struct {
	Name   string `arg:"" help:"Document name"`
	Output string `short:"o" help:"Write to this file instead of stdout" type:"path"`
}

func (c *StoreGetCmd) Run(cfg *config.Config) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	data, err := st.Read(context.Background(), c.Name)
	if err != nil {
		return err
	}
	if c.Output == "" {
		_, err = stdout.Write(data)
		return err
	}
	if err := atomic.WriteFile(c.Output, bytes.NewReader(data)); err != nil {
		return errors.NewIO("write", c.Output, err)
	}
	return nil
}

// StorePutCmd stores a local file under a name. The name defaults to the
// file's base name.
type StorePutCmd struct {
	Path string `arg:"" help:"Local file" type:"existingfile"`
	Name string `arg:"" optional:"" help:"Document name"`
}

func (c *StorePutCmd) Run(cfg *config.Config) error {
	name := c.Name
	if name == "" {
		var err error
		if name, err = validation.SanitizeFilename(filepath.Base(c.Path)); err != nil {
			return &errors.ValidationError{Field: "name", Value: c.Path, Message: err.Error(), Err: errors.ErrInvalidInput}
		}
	}
	f, err := os.Open(c.Path)
	if err != nil {
		return errors.NewIO("open", c.Path, err)
	}
	defer f.Close()
	data, err := validation.ReadDocument(f)
	if err != nil {
		return &errors.ValidationError{Field: "path", Value: c.Path, Message: err.Error(), Err: errors.ErrInvalidInput}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Save(context.Background(), name, data); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "stored %s (%d bytes)\n", name, len(data))
	return nil
}

// ServeCmd starts the edit server.
type ServeCmd struct{}

func (c *ServeCmd) Run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	apiCfg := api.DefaultConfig()
	apiCfg.Addr = cfg.Addr
	apiCfg.SessionTTL = cfg.SessionTTL
	apiCfg.AllowedOrigins = cfg.AllowedOrigins
	api.Version = version
	return api.New(apiCfg, st).ListenAndServe(ctx)
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "karaoke version %s\n", version)
	return nil
}

// setup validates the global configuration and initializes logging.
func setup(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return cfg.InitLogging()
}

func main() {
	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("karaoke"),
		kong.Description("Karaoke timing document editor"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(setup(&cli.Config))
	err := ctx.Run(&cli.Config)
	ctx.FatalIfErrorf(err)
}
