package checkusername

import (
	"context"
	"fmt"
	"net/url"

	"github.com/opst/crabclient/cmd/crab/commandline/command"
	craberr "github.com/opst/crabclient/cmd/crab/errors"
	"github.com/opst/crabclient/cmd/crab/rest"
	"github.com/opst/crabclient/pkg/commandline/usage"
	"github.com/sirupsen/logrus"
)

type Flags struct{}

type Command struct{}

func New() *Command {
	return &Command{}
}

func (*Command) Name() string {
	return "checkusername"
}

func (*Command) Help() command.Help {
	return command.Help{
		Synopsis: "show the CERN username of the proxy",
		Detail: `
Ask CRIC which CERN account the proxy belongs to.

No task is needed. The instance is chosen by the global --instance.
`,
		Example: "{{ .Command }}",
	}
}

func (*Command) Usage() usage.Usage[Flags] {
	return usage.New(Flags{}, usage.Args{})
}

// User is the payload of checkusername.
type User struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	DN       string `json:"dn,omitempty"`

	// subject of the proxy
	Subject string `json:"subject"`
}

func (u User) String() string {
	return "Username is: " + u.Username
}

func (*Command) Execute(
	ctx context.Context, l *logrus.Entry, e *command.Env, flags usage.FlagSet[Flags],
) (any, error) {
	name, inst, err := e.Instance()
	if err != nil {
		return nil, err
	}
	p, err := e.Proxy()
	if err != nil {
		return nil, err
	}
	l.Debugf("proxy: %s (%s left)", p.Subject(), p.TimeLeft(e.Now()).Round(1e9))

	client, err := e.Client(inst.CRICRoot(), name)
	if err != nil {
		return nil, err
	}
	resp, err := client.Get(ctx, "accounts/user/query/", url.Values{"json": {""}, "preset": {"whoami"}})
	if err != nil {
		return nil, err
	}
	if err := rest.Expect2xx(resp, rest.MessageFor{
		rest.Status4xx: "CRIC does not know the proxy",
		rest.Status5xx: "CRIC is in trouble",
	}); err != nil {
		return nil, err
	}

	r := resp.Result()
	u := User{
		Username: r.Get("login").String(),
		Name:     r.Get("name").String(),
		DN:       r.Get("dn").String(),
		Subject:  p.Subject(),
	}
	if u.Username == "" {
		return nil, craberr.NewCUIError(
			"no CERN account is found for the proxy",
			craberr.WithHint("register the certificate to your CERN account"),
			craberr.WithCause(fmt.Errorf("%w: %s is not registered in CRIC", craberr.ErrCredential, u.Subject)),
		)
	}

	fmt.Fprintln(e.Stdout(), u.String())
	return u, nil
}
