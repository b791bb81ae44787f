package tool

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// MaxActions is the most pool management actions one invocation may queue.
const MaxActions = 128

var (
	// ErrUsage reports bad command line arguments.
	ErrUsage = errors.New("usage error")
	// ErrUnimplemented is returned for import, export and statistics.
	ErrUnimplemented = errors.New("not yet implemented")
)

type ActionKind int

const (
	ActionAdd ActionKind = iota
	ActionRemove
	ActionRelease
	ActionShow
)

func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionRelease:
		return "release"
	case ActionShow:
		return "show"
	default:
		return "unknown"
	}
}

// Action is one queued pool management request.
type Action struct {
	Kind  ActionKind
	Range string
	// Prefix is the allocation prefix length, 0 for the full address width.
	Prefix uint8
}

// Options is the parsed command line.
type Options struct {
	Actions    []Action
	ConfigFile string
	Verbosity  int

	Import string
	Export bool
	Stats  bool

	Server string
	Pool   string
	// Range tags addresses added to the pool.
	Range string
}

var (
	_ pflag.Value = (*actionValue)(nil)
	_ pflag.Value = (*prefixValue)(nil)
)

// actionValue queues an action of one kind each time its flag is seen.
type actionValue struct {
	opts *Options
	kind ActionKind
}

func (v *actionValue) String() string { return "" }
func (v *actionValue) Type() string   { return "range" }

func (v *actionValue) Set(s string) error {
	if len(v.opts.Actions) >= MaxActions {
		return fmt.Errorf("too many actions, max is %d", MaxActions)
	}
	v.opts.Actions = append(v.opts.Actions, Action{Kind: v.kind, Range: s})
	return nil
}

// prefixValue sets the prefix length of the most recently queued action.
type prefixValue struct {
	opts *Options
}

func (v *prefixValue) String() string { return "" }
func (v *prefixValue) Type() string   { return "prefix_len" }

func (v *prefixValue) Set(s string) error {
	if len(v.opts.Actions) == 0 {
		return errors.New("prefix may only be specified after a pool management action")
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return errors.New("prefix must be an integer value between 0 and 255")
	}
	v.opts.Actions[len(v.opts.Actions)-1].Prefix = uint8(n)
	return nil
}

// NewCommand returns the root command. run is called once the command line
// has been parsed.
func NewCommand(run func(cmd *cobra.Command, opts *Options) error) *cobra.Command {
	opts := &Options{}

	cmd := &cobra.Command{
		Use:   "ippool [[-a|-d|-r|-s] -p] [options] <server[:port]> <pool> [<range>]",
		Short: "Manage IP pools stored in redis",
		Long: `Add, delete, release and show the addresses or prefixes of an IP pool.

<range> is "127.0.0.1-127.0.0.254", CIDR network "127.0.0.1/24" or host "127.0.0.1"`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 {
				return fmt.Errorf("%w: need server and pool name", ErrUsage)
			}
			if len(args) > 3 {
				return fmt.Errorf("%w: unexpected argument %q", ErrUsage, args[3])
			}
			return nil
		},
		SilenceErrors:         true,
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Server, opts.Pool = args[0], args[1]
			if len(args) == 3 {
				opts.Range = args[2]
			}
			return run(cmd, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	flags := cmd.Flags()
	flags.SortFlags = false

	flags.VarP(&actionValue{opts, ActionAdd}, "add", "a", "Add addresses/prefixes to the pool")
	flags.VarP(&actionValue{opts, ActionRemove}, "delete", "d", "Delete addresses/prefixes in this range")
	flags.VarP(&actionValue{opts, ActionRelease}, "release", "r", "Release addresses/prefixes in this range")
	flags.VarP(&actionValue{opts, ActionShow}, "show", "s", "Show addresses/prefixes in this range")
	flags.VarP(&prefixValue{opts}, "prefix", "p", "Length of prefix to allocate to the preceding action (defaults to 32/128)")

	flags.StringVarP(&opts.Import, "import", "i", "", "Import entries from ISC lease file [NYI]")
	flags.BoolVarP(&opts.Export, "export", "I", false, "Output active entries in ISC lease file format [NYI]")
	flags.BoolVarP(&opts.Stats, "stats", "S", false, "Print pool statistics [NYI]")
	for _, name := range []string{"import", "export", "stats"} {
		flags.MarkHidden(name)
	}

	flags.CountVarP(&opts.Verbosity, "verbose", "x", "Increase the verbosity level")
	flags.StringVarP(&opts.ConfigFile, "config", "f", "", "Load options from a YAML config file")

	return cmd
}
