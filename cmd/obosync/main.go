// Command obosync keeps a local copy of an OBO ontology in step with its
// upstream repository. It converts between OBO and JSON, checks that
// conversions are lossless, reports what changed between versions and
// manages the local version history.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"

	"github.com/FocuswithJustin/obosync/core/diff"
	"github.com/FocuswithJustin/obosync/core/obo"
	"github.com/FocuswithJustin/obosync/core/roundtrip"
	"github.com/FocuswithJustin/obosync/core/sqlite"
	"github.com/FocuswithJustin/obosync/internal/changelog"
	"github.com/FocuswithJustin/obosync/internal/config"
	"github.com/FocuswithJustin/obosync/internal/logging"
	"github.com/FocuswithJustin/obosync/internal/updater"
	"github.com/FocuswithJustin/obosync/internal/upstream"
	"github.com/FocuswithJustin/obosync/internal/userfile"
	"github.com/FocuswithJustin/obosync/internal/validation"
	"github.com/FocuswithJustin/obosync/internal/versionstore"
)

const version = "0.1.0"

// Command output goes through these so tests can capture it.
var (
	stdout io.Writer = os.Stdout
	stdin  io.Reader = os.Stdin
)

// CLI defines the command-line interface for obosync.
var CLI struct {
	// Global flags
	Config    string `name:"config" short:"c" help:"Configuration file" default:"obosync.yaml" type:"path"`
	Root      string `name:"root" help:"Override directories.root" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (json, text)"`

	Sync      SyncCmd       `cmd:"" help:"Fetch the upstream file and apply it if accepted"`
	Status    StatusCmd     `cmd:"" help:"Compare the local version with upstream"`
	Upload    UploadCmd     `cmd:"" help:"Validate an operator-supplied .obo or .json file"`
	Watch     WatchCmd      `cmd:"" help:"Process files dropped into a directory"`
	Reset     ResetCmd      `cmd:"" help:"Remove every file from the upload directory"`
	Convert   ConvertGroup  `cmd:"" help:"Convert between OBO and JSON"`
	Roundtrip RoundtripCmd  `cmd:"" help:"Check that an OBO file survives parse and serialize"`
	Diff      DiffCmd       `cmd:"" help:"Compare two ontology files"`
	Validate  ValidateCmd   `cmd:"" help:"Check the structure of an ontology file"`
	Versions  VersionsGroup `cmd:"" help:"Local version history"`
	OLS       OLSGroup      `cmd:"" name:"ols" help:"Ontology Lookup Service queries"`
	Version   VersionCmd    `cmd:"" help:"Print version information"`
}

// ConvertGroup contains format conversions.
type ConvertGroup struct {
	OBO2JSON OBO2JSONCmd `cmd:"" name:"obo2json" help:"Convert an OBO file to JSON"`
	JSON2OBO JSON2OBOCmd `cmd:"" name:"json2obo" help:"Convert a JSON file to OBO"`
}

// VersionsGroup contains version history operations.
type VersionsGroup struct {
	List   VersionsListCmd   `cmd:"" help:"List stored versions, newest first"`
	Prune  VersionsPruneCmd  `cmd:"" help:"Remove all but the newest versions"`
	Export VersionsExportCmd `cmd:"" help:"Export a version as a tar.xz bundle"`
}

// OLSGroup contains Ontology Lookup Service queries.
type OLSGroup struct {
	Status OLSStatusCmd `cmd:"" help:"Check whether OLS has a newer release than the local version"`
	Terms  OLSTermsCmd  `cmd:"" help:"Download the OLS term listing"`
}

// SyncCmd runs one update against upstream.
type SyncCmd struct {
	Yes    bool `name:"yes" short:"y" help:"Apply changes without asking"`
	DryRun bool `name:"dry-run" help:"Decide but do not apply"`
	Limit  int  `name:"limit" default:"10" help:"Changed terms to list per kind before asking"`
}

func (c *SyncCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	u := newUpdater(cfg, store, updater.WithAutoAccept(c.Yes), updater.WithDryRun(c.DryRun))
	ctx, stop := signalContext()
	defer stop()

	out, err := u.Run(ctx, func(_ context.Context, report *diff.Report) (bool, error) {
		changelog.WriteSummary(stdout, report)
		changelog.WriteDetails(stdout, report, c.Limit)
		return confirm(stdin, stdout, "Apply these changes?")
	})
	if err != nil {
		return err
	}
	printOutcome(out, c.DryRun)
	return nil
}

func printOutcome(out *updater.Outcome, dryRun bool) {
	if !out.Status.NeedsUpdate {
		fmt.Fprintf(stdout, "Already up to date (%s)\n", shortSHA(out.Status.Remote.SHA))
		return
	}
	d := out.Decision
	if d == nil {
		return
	}
	if d.Changes != nil && d.Verdict != updater.NeedsConfirmation {
		changelog.WriteSummary(stdout, d.Changes)
	}
	switch {
	case out.Applied:
		fmt.Fprintf(stdout, "Applied version %s (%s terms)\n", out.Result.Version.ID, humanize.Comma(int64(out.Result.Version.TermCount)))
		if out.Result.ChangeLogPath != "" {
			fmt.Fprintf(stdout, "Change log: %s\n", out.Result.ChangeLogPath)
		}
		for _, v := range out.Result.Pruned {
			fmt.Fprintf(stdout, "Pruned version %s\n", v.ID)
		}
	case d.Verdict == updater.Reject:
		fmt.Fprintf(stdout, "Rejected: %s\n", d.Reason)
	case dryRun:
		fmt.Fprintf(stdout, "Dry run: would %s (%s)\n", d.Verdict, d.Reason)
	default:
		fmt.Fprintln(stdout, "Update cancelled")
	}
}

// StatusCmd compares local and upstream.
type StatusCmd struct {
	JSON bool `name:"json" help:"Print JSON"`
}

func (c *StatusCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := newUpdater(cfg, store).Status(context.Background())
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(s)
	}
	fmt.Fprintf(stdout, "Remote: %s  %s\n", shortSHA(s.Remote.SHA), s.Remote.LastModified.Format(time.RFC3339))
	if s.Remote.Message != "" {
		fmt.Fprintf(stdout, "        %s\n", firstLine(s.Remote.Message))
	}
	if s.Local == nil {
		fmt.Fprintln(stdout, "Local:  none")
	} else {
		fmt.Fprintf(stdout, "Local:  %s  %s (%s, %s)\n", shortSHA(s.Local.CommitSHA), s.Local.ID, s.Local.Source, humanize.Time(s.Local.CreatedAt))
	}
	if s.Synced != nil && (s.Local == nil || s.Synced.ID != s.Local.ID) {
		fmt.Fprintf(stdout, "Synced: %s  %s\n", shortSHA(s.Synced.CommitSHA), s.Synced.ID)
	}
	if s.NeedsUpdate {
		fmt.Fprintln(stdout, "Update available")
	} else {
		fmt.Fprintln(stdout, "Up to date")
	}
	return nil
}

// UploadCmd validates an operator-supplied file.
type UploadCmd struct {
	Path   string `arg:"" help:"File to upload (.obo or .json)" type:"path"`
	Commit bool   `name:"commit" help:"Record the upload as a new version"`
}

func (c *UploadCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	res, err := newProcessor(cfg).Process(ctx, c.Path)
	if err != nil {
		return err
	}
	printUpload(res)
	if !c.Commit {
		return nil
	}
	return commitUpload(ctx, cfg, res)
}

func printUpload(res *userfile.Result) {
	fmt.Fprintf(stdout, "Accepted %s -> %s\n", filepath.Base(res.Source), res.JSONPath)
	fmt.Fprintf(stdout, "  terms: %s", humanize.Comma(int64(res.Stats.TotalTerms)))
	if res.Stats.HasTypedefs {
		fmt.Fprintf(stdout, ", typedefs: %d", res.Stats.TypedefCount)
	}
	fmt.Fprintln(stdout)
	if res.Roundtrip != nil {
		fmt.Fprintf(stdout, "  round trip: %s (%s)\n", res.Roundtrip.Strategy, res.Roundtrip.LossClass)
	}
}

func commitUpload(ctx context.Context, cfg *config.Config, res *userfile.Result) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	committed, err := newUpdater(cfg, store).CommitDocument(ctx, res.OBOText, res.Document, versionstore.Metadata{
		Source: versionstore.SourceUpload,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Committed version %s\n", committed.Version.ID)
	if committed.ChangeLogPath != "" {
		fmt.Fprintf(stdout, "Change log: %s\n", committed.ChangeLogPath)
	}
	return nil
}

// WatchCmd processes files dropped into a directory until interrupted.
type WatchCmd struct {
	Dir    string `arg:"" optional:"" help:"Directory to watch (default <root>/inbox)" type:"path"`
	Commit bool   `name:"commit" help:"Record each accepted upload as a new version"`
}

func (c *WatchCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = cfg.Path("inbox")
	}
	if filepath.Clean(dir) == filepath.Clean(cfg.CustomerFileDir()) {
		return fmt.Errorf("watch directory must differ from the upload directory %s", cfg.CustomerFileDir())
	}

	p := newProcessor(cfg)
	w, err := userfile.NewWatcher(dir, cfg.FilePatterns.UploadPattern, func(ctx context.Context, path string) {
		res, err := p.Process(ctx, path)
		if err != nil {
			logging.ErrorContext(ctx, "upload rejected", "path", path, "error", err)
			return
		}
		printUpload(res)
		if c.Commit {
			if err := commitUpload(ctx, cfg, res); err != nil {
				logging.ErrorContext(ctx, "failed to commit upload", "path", path, "error", err)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("invalid upload pattern %q: %w", cfg.FilePatterns.UploadPattern, err)
	}

	ctx, stop := signalContext()
	defer stop()
	return w.Run(ctx)
}

// ResetCmd clears the upload directory.
type ResetCmd struct{}

func (c *ResetCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	n, err := newProcessor(cfg).Reset()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %d file(s) from %s\n", n, cfg.CustomerFileDir())
	return nil
}

// OBO2JSONCmd converts OBO to JSON.
type OBO2JSONCmd struct {
	Input  string `arg:"" help:"OBO file" type:"existingfile"`
	Output string `name:"out" short:"o" help:"Output file (default: input with .json)" type:"path"`
}

func (c *OBO2JSONCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	doc := newParser(cfg).Parse(string(data))
	encoded, err := obo.EncodeJSON(doc)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = replaceExt(c.Input, ".json")
	}
	if err := os.WriteFile(out, encoded, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%d terms)\n", out, len(doc.Terms))
	return nil
}

// JSON2OBOCmd converts JSON to OBO.
type JSON2OBOCmd struct {
	Input  string `arg:"" help:"JSON file" type:"existingfile"`
	Output string `name:"out" short:"o" help:"Output file (default: input with .obo)" type:"path"`
}

func (c *JSON2OBOCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	if check := obo.ValidateStructure(data); !check.Valid {
		return fmt.Errorf("%s: %s", c.Input, check.Message)
	}
	doc, err := obo.DecodeJSON(data)
	if err != nil {
		return err
	}
	out := c.Output
	if out == "" {
		out = replaceExt(c.Input, ".obo")
	}
	if err := os.WriteFile(out, []byte(newSerializer(cfg).Serialize(doc)), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%d terms)\n", out, len(doc.Terms))
	return nil
}

// RoundtripCmd checks one OBO file.
type RoundtripCmd struct {
	Path   string `arg:"" help:"OBO file" type:"existingfile"`
	Differ string `name:"differ" help:"Line differ: line or git (default from config)"`
	JSON   bool   `name:"json" help:"Print the full report as JSON"`
}

func (c *RoundtripCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	switch c.Differ {
	case "":
	case "line", "git":
		cfg.Validation.Differ = c.Differ
	default:
		return fmt.Errorf("--differ must be line or git, got %q", c.Differ)
	}
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	text := string(data)
	doc := newParser(cfg).Parse(text)
	report := newValidator(cfg).Validate(context.Background(), text, newSerializer(cfg).Serialize(doc))

	if c.JSON {
		out, err := report.ToJSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, string(out))
	} else {
		for _, s := range report.Steps {
			mark := "FAIL"
			if s.Pass {
				mark = "PASS"
			}
			fmt.Fprintf(stdout, "%-10s %s\n", s.Strategy, mark)
			for _, line := range s.Sample {
				fmt.Fprintf(stdout, "    %s\n", line)
			}
			for _, line := range s.Missing {
				fmt.Fprintf(stdout, "    - %s\n", line)
			}
			for _, line := range s.Extra {
				fmt.Fprintf(stdout, "    + %s\n", line)
			}
			if s.Error != "" {
				fmt.Fprintf(stdout, "    error: %s\n", s.Error)
			}
		}
		fmt.Fprintf(stdout, "Result: %s (%s)\n", report.Status, report.LossClass)
	}
	return report.Err(c.Path)
}

// DiffCmd compares two ontology files.
type DiffCmd struct {
	Old   string `arg:"" help:"Old version (.obo or .json)" type:"existingfile"`
	New   string `arg:"" help:"New version (.obo or .json)" type:"existingfile"`
	JSON  bool   `name:"json" help:"Print the change log JSON"`
	Limit int    `name:"limit" default:"10" help:"Changed terms to list per kind (0 lists all)"`
}

func (c *DiffCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	oldDoc, err := loadDocument(cfg, c.Old)
	if err != nil {
		return err
	}
	newDoc, err := loadDocument(cfg, c.New)
	if err != nil {
		return err
	}
	report := diff.Compare(oldDoc, newDoc)

	if c.JSON {
		return printJSON(changelog.Build(report,
			&changelog.VersionInfo{ID: filepath.Base(c.Old)},
			&changelog.VersionInfo{ID: filepath.Base(c.New)},
			time.Now().UTC()))
	}
	changelog.WriteSummary(stdout, report)
	changelog.WriteDetails(stdout, report, c.Limit)
	return nil
}

// ValidateCmd checks an ontology file's structure.
type ValidateCmd struct {
	Path string `arg:"" help:"File to check (.obo or .json)" type:"existingfile"`
}

func (c *ValidateCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var check *obo.StructureResult
	switch validation.DetectFileType(c.Path) {
	case validation.FileTypeJSON:
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		check = obo.ValidateStructure(data)
	case validation.FileTypeOBO:
		doc, err := loadDocument(cfg, c.Path)
		if err != nil {
			return err
		}
		check = obo.ValidateDocument(doc)
	default:
		return fmt.Errorf("%s: only .json and .obo files are supported", c.Path)
	}
	if !check.Valid {
		return fmt.Errorf("%s: %s", c.Path, check.Message)
	}
	fmt.Fprintln(stdout, check.Message)
	fmt.Fprintf(stdout, "  header fields: %d\n  terms: %s\n", check.Stats.HeaderFields, humanize.Comma(int64(check.Stats.TotalTerms)))
	if check.Stats.HasTypedefs {
		fmt.Fprintf(stdout, "  typedefs: %d\n", check.Stats.TypedefCount)
	}
	return nil
}

// VersionsListCmd lists stored versions.
type VersionsListCmd struct {
	JSON bool `name:"json" help:"Print JSON"`
}

func (c *VersionsListCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	versions, err := versionstore.ListIndex(context.Background(), cfg.StoreDir())
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(versions)
	}
	if len(versions) == 0 {
		fmt.Fprintln(stdout, "No versions stored")
		return nil
	}
	for _, v := range versions {
		fmt.Fprintf(stdout, "%-24s %-7s %-8s %8s terms  %s\n",
			v.ID, v.Source, shortSHA(v.CommitSHA), humanize.Comma(int64(v.TermCount)), humanize.Bytes(uint64(v.OBO.Size)))
	}
	return nil
}

// VersionsPruneCmd removes old versions.
type VersionsPruneCmd struct {
	Keep int `name:"keep" help:"Versions to keep (default from config)"`
}

func (c *VersionsPruneCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	keep := c.Keep
	if keep == 0 {
		keep = cfg.Retention.KeepVersions
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Prune(context.Background(), keep)
	if err != nil {
		return err
	}
	for _, v := range removed {
		fmt.Fprintf(stdout, "Removed version %s\n", v.ID)
	}
	fmt.Fprintf(stdout, "Pruned %d version(s), kept %d\n", len(removed), keep)
	return nil
}

// VersionsExportCmd bundles one version.
type VersionsExportCmd struct {
	ID  string `arg:"" help:"Version id"`
	Out string `name:"out" short:"o" required:"" help:"Archive path (.tar.xz)" type:"path"`
}

func (c *VersionsExportCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Export(context.Background(), c.ID, c.Out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Exported version %s to %s\n", c.ID, c.Out)
	return nil
}

// OLSStatusCmd compares the OLS release with the local version.
type OLSStatusCmd struct{}

func (c *OLSStatusCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	info, err := newOLS(cfg).Metadata(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "OLS %s: version %s, updated %s, %s terms\n",
		cfg.OLS.Ontology, info.Version, info.Updated, humanize.Comma(int64(info.NumberOfTerms)))

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	versions, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(stdout, "No local version")
		return nil
	}
	local := versions[0].CreatedAt.Format(time.RFC3339Nano)
	if upstream.IsNewer(info.Updated, local) {
		fmt.Fprintf(stdout, "OLS is newer than local version %s\n", versions[0].ID)
	} else {
		fmt.Fprintf(stdout, "Local version %s is current\n", versions[0].ID)
	}
	return nil
}

// OLSTermsCmd writes the OLS term listing as JSON.
type OLSTermsCmd struct {
	Out string `name:"out" short:"o" help:"Output file (default stdout)" type:"path"`
}

func (c *OLSTermsCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()
	terms, err := newOLS(cfg).Terms(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(terms, "", "  ")
	if err != nil {
		return err
	}
	if c.Out == "" {
		fmt.Fprintln(stdout, string(data))
		return nil
	}
	if err := os.WriteFile(c.Out, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s terms to %s\n", humanize.Comma(int64(len(terms))), c.Out)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "obosync version %s\n", version)
	fmt.Fprintf(stdout, "sqlite driver: %s (%s)\n", info.DriverType, info.Package)
	return nil
}

// Helper functions

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return nil, err
	}
	if CLI.Root != "" {
		cfg.Directories.Root = CLI.Root
	}
	level := cfg.Logging.Level
	if CLI.LogLevel != "" {
		level = CLI.LogLevel
	}
	format := cfg.Logging.Format
	if CLI.LogFormat != "" {
		format = CLI.LogFormat
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	fmtr, err := logging.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	logging.InitLogger(lvl, fmtr)
	return cfg, nil
}

func newParser(cfg *config.Config) *obo.Parser {
	return obo.NewParser(obo.WithRefPrefix(cfg.OBO.IDPrefix))
}

func newSerializer(cfg *config.Config) *obo.Serializer {
	return obo.NewSerializer(cfg.OBO.FieldOrder, cfg.OBO.TypedefFieldOrder)
}

func newValidator(cfg *config.Config) *roundtrip.Validator {
	if cfg.Validation.Differ == "git" {
		return roundtrip.NewValidator(roundtrip.WithDiffer(roundtrip.GitDiffer{Binary: cfg.Validation.GitBinary}))
	}
	return roundtrip.NewValidator()
}

func newProcessor(cfg *config.Config) *userfile.Processor {
	return userfile.NewProcessor(cfg.CustomerFileDir(), newParser(cfg), newSerializer(cfg), newValidator(cfg))
}

func newOLS(cfg *config.Config) *upstream.OLSClient {
	return upstream.NewOLSClient(cfg.OLS.BaseURL, cfg.OLS.Ontology, cfg.OLS.PageSize, cfg.API.Timeout)
}

func openStore(cfg *config.Config) (*versionstore.FileStore, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return versionstore.Open(cfg.StoreDir(), cfg.LocalFilesDir(), cfg.BaseName(),
		versionstore.WithTimestamp(cfg.Timestamp))
}

func newUpdater(cfg *config.Config, store versionstore.Store, opts ...updater.Option) *updater.Updater {
	source := upstream.NewGitHubClient(cfg.API.GitHubAPIBase, cfg.GitHub.RepoOwner, cfg.GitHub.RepoName,
		cfg.GitHub.FilePath, cfg.GitHub.Branch, cfg.GitHub.URL, cfg.API.PerPage, cfg.API.Timeout,
		upstream.WithRawBase(cfg.API.RawBase), upstream.WithCommitCache(cfg.API.CacheTTL))
	base := []updater.Option{
		updater.WithParser(newParser(cfg)),
		updater.WithSerializer(newSerializer(cfg)),
		updater.WithValidator(newValidator(cfg)),
		updater.WithChangeLog(changelog.NewWriter(cfg.LogsDir(), cfg.ChangeLogName)),
		updater.WithRetention(cfg.Retention.KeepVersions),
	}
	return updater.New(source, store, append(base, opts...)...)
}

// loadDocument reads .json files as canonical JSON and anything else as
// OBO text.
func loadDocument(cfg *config.Config, path string) (*obo.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if validation.DetectFileType(path) == validation.FileTypeJSON {
		if check := obo.ValidateStructure(data); !check.Valid {
			return nil, fmt.Errorf("%s: %s", path, check.Message)
		}
		return obo.DecodeJSON(data)
	}
	return newParser(cfg).Parse(string(data)), nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return false, err
		}
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(data))
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	if sha == "" {
		return "-"
	}
	return sha
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("obosync"),
		kong.Description("obosync - OBO ontology sync and round-trip validation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
