// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nyaya-dev/nyaya/internal/config"
	"github.com/nyaya-dev/nyaya/internal/provider"
	"github.com/nyaya-dev/nyaya/internal/secrets"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// initHTTPClient is the HTTP client used for key validation. Tests replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// configPathForWrite resolves where init writes the config. Tests replace it.
var configPathForWrite = config.DefaultConfigPath

// embeddingProvider is the only embedding backend init configures.
const embeddingProvider = provider.NameOpenAI

type initWizardStep int

const (
	stepProvider          initWizardStep = iota // select generation provider
	stepAPIKey                                  // enter generation key
	stepValidateKey                             // validating generation key
	stepEmbeddingKey                            // enter embedding key
	stepValidateEmbedding                       // validating embedding key
	stepDone
	stepError
)

// initResult holds what the wizard collected.
type initResult struct {
	Provider     string
	APIKey       string
	EmbeddingKey string
}

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
	configWrittenMsg struct{ path string }
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	failStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

var supportedProviders = []string{
	provider.NameGoogle,
	provider.NameOpenAI,
	provider.NameAnthropic,
}

var defaultModels = map[string]string{
	provider.NameGoogle:    "gemini-2.5-flash",
	provider.NameOpenAI:    "gpt-4o-mini",
	provider.NameAnthropic: "claude-sonnet-4-5",
}

type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	embeddingInput textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	forceOverwrite bool
}

func newKeyInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	return in
}

func newInitModel(store secrets.Store) initModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:           stepProvider,
		apiKeyInput:    newKeyInput("paste API key here"),
		embeddingInput: newKeyInput("paste OpenAI API key here"),
		spinner:        sp,
		secretStore:    store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		switch msg.step {
		case stepValidateKey:
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		case stepValidateEmbedding:
			m.step = stepEmbeddingKey
			m.embeddingInput.Focus()
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleKeyInput(msg, stepValidateKey)
	case stepEmbeddingKey:
		return m.handleKeyInput(msg, stepValidateEmbedding)
	case stepValidateKey, stepValidateEmbedding:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(supportedProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = supportedProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

// handleKeyInput drives one of the two key prompts; next is the validation
// step entered on enter.
func (m initModel) handleKeyInput(msg tea.KeyMsg, next initWizardStep) (tea.Model, tea.Cmd) {
	input := &m.apiKeyInput
	if next == stepValidateEmbedding {
		input = &m.embeddingInput
	}

	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(input.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		name := m.result.Provider
		if next == stepValidateEmbedding {
			m.result.EmbeddingKey = key
			name = embeddingProvider
		} else {
			m.result.APIKey = key
		}
		m.validationErr = ""
		m.step = next
		return m, tea.Batch(m.spinner.Tick, validateKeyCmd(next, name, key))
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	*input, cmd = input.Update(msg)
	return m, cmd
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	if msg.step == stepValidateKey && m.result.Provider != embeddingProvider {
		m.step = stepEmbeddingKey
		m.embeddingInput.SetValue("")
		m.embeddingInput.Focus()
		return m, textinput.Blink
	}
	return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.step {
	case stepAPIKey:
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	case stepEmbeddingKey:
		m.embeddingInput, cmd = m.embeddingInput.Update(msg)
	}
	return m, cmd
}

func (m initModel) totalSteps() int {
	if m.result.Provider == embeddingProvider {
		return 1
	}
	return 2
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  NyayaGPT Setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Choose the model that writes answers") + "\n\n")
		for i, p := range supportedProviders {
			model := dimStyle.Render("  " + defaultModels[p])
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+p) + model + "\n")
			} else {
				b.WriteString("    " + p + model + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render(fmt.Sprintf("Step 1/%d: %s API key", m.totalSteps(), m.result.Provider)) + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		m.writeValidationErr(&b)

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + m.result.Provider + " API key…\n")

	case stepEmbeddingKey:
		b.WriteString(promptStyle.Render("Step 2/2: OpenAI API key for embeddings") + "\n\n")
		b.WriteString(m.embeddingInput.View() + "\n")
		m.writeValidationErr(&b)

	case stepValidateEmbedding:
		b.WriteString(m.spinner.View() + " Validating OpenAI API key…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("nyaya ingest") + " to index the Constitution, then " +
			promptStyle.Render("nyaya chat") + ".\n")
		b.WriteString("Run " + promptStyle.Render("nyaya doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(failStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

func (m initModel) writeValidationErr(b *strings.Builder) {
	if m.validationErr != "" {
		b.WriteString("\n" + failStyle.Render("  "+m.validationErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))
}

func validateKeyCmd(step initWizardStep, name, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, name, key, ""); err != nil {
			return validationErrorMsg{step: step, err: err}
		}
		return validationSuccessMsg{step: step}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

type generatedConfig struct {
	Embedding struct {
		Provider string `yaml:"provider"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"embedding"`
	Generation struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
	} `yaml:"generation"`
	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`
}

// GenerateConfigYAML renders the config init writes. Keys appear only as
// keyring:// references.
func GenerateConfigYAML(result initResult) (string, error) {
	var gc generatedConfig
	gc.Embedding.Provider = embeddingProvider
	gc.Embedding.APIKey = secrets.URI(embeddingProvider + "-api-key")
	gc.Generation.Provider = result.Provider
	gc.Generation.Model = defaultModels[result.Provider]
	gc.Generation.APIKey = secrets.URI(result.Provider + "-api-key")
	gc.Store.Backend = "sqlite"

	body, err := yaml.Marshal(gc)
	if err != nil {
		return "", nyayaerr.Wrap(err, nyayaerr.CodeCLISetupFailure, "rendering config")
	}
	return "# NyayaGPT configuration, generated by nyaya init.\n" +
		"# Every other setting uses its default; see `nyaya doctor`.\n\n" + string(body), nil
}

// storeSecretAndWriteConfig saves the keys to the keyring and writes the
// config. An existing config is kept unless forceOverwrite is set.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", nyayaerr.Errorf(nyayaerr.CodeCLISetupFailure,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	keys := map[string]string{result.Provider + "-api-key": result.APIKey}
	if result.EmbeddingKey != "" {
		keys[embeddingProvider+"-api-key"] = result.EmbeddingKey
	}
	// Orphaned keyring entries from a failed write are overwritten on the next run.
	for name, value := range keys {
		if err := store.Store(secrets.Service, name, value); err != nil {
			return "", nyayaerr.Errorf(nyayaerr.CodeSecretStoreFailure, "storing %s: %w", name, err)
		}
	}

	body, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}
	if err := config.WriteConfig(cfgPath, []byte(body)); err != nil {
		return "", err
	}
	return cfgPath, nil
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Walk through choosing the generative model and entering API keys.

Keys are stored in the OS keyring and referenced from the config file via
keyring:// URIs. No secrets are written in plain text.

After completion, run:
  nyaya ingest   index the Constitution
  nyaya chat     ask questions
  nyaya doctor   verify your setup`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE:        runInit,
	}
	cmd.Flags().Bool("force", false, "overwrite an existing config file")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	if !isTerminal(cmd.InOrStdin()) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"nyaya init requires an interactive terminal.\n"+
				"To configure non-interactively, edit ~/.config/nyaya/nyaya.yaml and use `nyaya secret set`.")
		return nyayaerr.New(nyayaerr.CodeCLISetupFailure, "nyaya init: not an interactive terminal")
	}

	m := newInitModel(secretStoreFactory())
	m.forceOverwrite, _ = cmd.Flags().GetBool("force")

	finalModel, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return nyayaerr.Errorf(nyayaerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return nyayaerr.New(nyayaerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return nyayaerr.Errorf(nyayaerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}
	if fm.step == stepDone {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", fm.configPath)
	}
	return nil
}
