package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

var errLoginCancelled = errors.New("login cancelled by user")

type loginStep int

const (
	stepEmail loginStep = iota
	stepPassword
)

const (
	txtEmailPlaceholder    = "you@example.com"
	txtPasswordPlaceholder = "password"
	txtEmailPrompt         = "Enter your email address"
	txtPasswordPrompt      = "Enter the password for %s"
	txtSigningIn           = "Signing in..."
	txtLoginHelp           = "Press 'Enter' to submit. 'Esc' to go back/quit. 'Ctrl+C' to quit."
)

var (
	focusedStyle     = green
	helpStyle        = gray
	errorTextStyle   = red
	errorHeaderStyle = red.Bold(true)
	spinnerStyle     = cyan
	titleStyle       = cyan.Bold(true)
)

type LoginTUIOpts struct {
	Email      string
	ServerURL  string
	ConfigPath string
	// Submit is called off the UI goroutine with the collected credentials.
	Submit         func(email, password string) error
	EmailValidator func(email string) error
}

type loginModel struct {
	opts *LoginTUIOpts

	emailInput    textinput.Model
	passwordInput textinput.Model
	spinner       spinner.Model

	step      loginStep
	loading   bool
	errorText string
	done      bool
	cancelled bool
}

type loginResultMsg struct{ err error }

func newLoginModel(opts *LoginTUIOpts) loginModel {
	email := textinput.New()
	email.Placeholder = txtEmailPlaceholder
	email.CharLimit = 254
	email.Width = 64
	email.PromptStyle = focusedStyle
	email.TextStyle = focusedStyle
	email.PlaceholderStyle = gray
	email.SetValue(opts.Email)

	password := textinput.New()
	password.Placeholder = txtPasswordPlaceholder
	password.CharLimit = 128
	password.Width = 64
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.PromptStyle = focusedStyle
	password.TextStyle = focusedStyle
	password.PlaceholderStyle = gray

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	m := loginModel{
		opts:          opts,
		emailInput:    email,
		passwordInput: password,
		spinner:       s,
	}

	// a preset email starts on the password step
	if opts.Email != "" && opts.EmailValidator(opts.Email) == nil {
		m.step = stepPassword
		m.passwordInput.Focus()
	} else {
		m.emailInput.Focus()
	}
	return m
}

func (m loginModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEsc:
			return m.back()
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}
			if m.step == stepEmail {
				return m.submitEmail()
			}
			return m.submitPassword()
		}

		var cmd tea.Cmd
		m.errorText = ""
		if m.step == stepEmail {
			m.emailInput, cmd = m.emailInput.Update(msg)
		} else {
			m.passwordInput, cmd = m.passwordInput.Update(msg)
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginResultMsg:
		m.loading = false
		if msg.err != nil {
			m.errorText = fmt.Sprintf("%s %s", errorHeaderStyle.Render("ERROR:"), msg.err)
			m.passwordInput.SetValue("")
			m.passwordInput.Focus()
			return m, textinput.Blink
		}
		m.done = true
		return m, tea.Quit
	}

	return m, nil
}

func (m loginModel) back() (tea.Model, tea.Cmd) {
	if m.step == stepPassword && !m.loading {
		m.step = stepEmail
		m.errorText = ""
		m.passwordInput.Blur()
		m.emailInput.Focus()
		return m, textinput.Blink
	}
	m.cancelled = true
	return m, tea.Quit
}

func (m loginModel) submitEmail() (tea.Model, tea.Cmd) {
	email := strings.TrimSpace(m.emailInput.Value())
	if err := m.opts.EmailValidator(email); err != nil {
		m.errorText = err.Error()
		return m, nil
	}

	m.errorText = ""
	m.emailInput.SetValue(email)
	m.emailInput.Blur()
	m.step = stepPassword
	m.passwordInput.Focus()
	return m, textinput.Blink
}

func (m loginModel) submitPassword() (tea.Model, tea.Cmd) {
	password := m.passwordInput.Value()
	if password == "" {
		m.errorText = "password is empty"
		return m, nil
	}

	m.errorText = ""
	m.loading = true
	m.passwordInput.Blur()

	email := m.emailInput.Value()
	submit := m.opts.Submit
	return m, func() tea.Msg {
		return loginResultMsg{err: submit(email, password)}
	}
}

func (m loginModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(docboxArt))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Server  "), green.Render(m.opts.ServerURL))
	fmt.Fprintf(&b, "%s%s\n\n", gray.Render("Config  "), green.Render(m.opts.ConfigPath))

	if m.step == stepEmail {
		b.WriteString(txtEmailPrompt)
		b.WriteString("\n\n")
		b.WriteString(m.emailInput.View())
	} else {
		fmt.Fprintf(&b, txtPasswordPrompt, green.Render(m.emailInput.Value()))
		b.WriteString("\n\n")
		b.WriteString(m.passwordInput.View())
	}

	if m.loading {
		fmt.Fprintf(&b, "\n\n%s %s", m.spinner.View(), txtSigningIn)
	}
	if m.errorText != "" {
		b.WriteString("\n\n")
		b.WriteString(errorTextStyle.Render(m.errorText))
	}
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(txtLoginHelp))
	b.WriteString("\n")
	return b.String()
}

// RunLoginTUI collects credentials interactively and calls opts.Submit until it succeeds
// or the user quits.
func RunLoginTUI(opts LoginTUIOpts) error {
	final, err := tea.NewProgram(newLoginModel(&opts), tea.WithAltScreen()).Run()
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	if m, ok := final.(loginModel); ok && m.done {
		return nil
	}
	return errLoginCancelled
}
