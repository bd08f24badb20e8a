package flagger

import (
	"flag"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

type Flag struct {
	Name      string
	ShortName string
	Help      string
	MetaVar   string
	ptr       reflect.Value
}

func (f Flag) SetFlag(fs *flag.FlagSet) error {
	names := []string{f.Name}
	if f.ShortName != "" {
		names = append(names, f.ShortName)
	}

	for i, name := range names {
		help := f.Help
		if 0 < i {
			help = fmt.Sprintf("alias for --%s", f.Name)
		}

		switch dv := f.ptr.Interface().(type) {
		case *bool:
			fs.BoolVar(dv, name, *dv, help)
		case *string:
			fs.StringVar(dv, name, *dv, help)
		case *int:
			fs.IntVar(dv, name, *dv, help)
		case *int64:
			fs.Int64Var(dv, name, *dv, help)
		case *uint:
			fs.UintVar(dv, name, *dv, help)
		case *time.Duration:
			fs.DurationVar(dv, name, *dv, help)
		case flag.Value:
			fs.Var(dv, name, help)
		default:
			return fmt.Errorf("unsupported type: %T (it must be pointer)", dv)
		}
	}

	return nil
}

func (f Flag) String() string {
	str := "--" + f.Name
	if f.ShortName != "" {
		str += "|-" + f.ShortName
	}

	if _, ok := f.ptr.Interface().(*bool); ok {
		return "[" + str + "]"
	}

	metavar := f.MetaVar
	if metavar == "" {
		switch val := f.ptr.Interface().(type) {
		case *string:
			metavar = *val
		case *time.Duration:
			metavar = fmt.Sprintf(`"%s"`, *val)
		case flag.Value:
			metavar = val.String()
		default:
			metavar = fmt.Sprintf("%v", reflect.Indirect(f.ptr).Interface())
		}
	}
	return str + "=" + metavar
}

// Flagger is a struct to set flags.
type Flagger[T any] struct {
	Flags  []Flag
	Values *T
}

// New returns new Flagger.
//
// # Example
//
//	type MyFlags struct {
//		Dir      string `flag:"dir,short=d,help=task directory"`
//		Parallel int    `flag:"parallel,metavar=N"`
//		Long     bool   `flag:""` // flag name is "long" after the field name
//	}
//
//	f := New(MyFlags{Dir: ".", Parallel: 10})
//	fs := flag.NewFlagSet("getoutput", flag.ContinueOnError)
//	f.SetFlags(fs)
//	fs.Parse([]string{"-d", "crab_task", "--parallel", "3"})
//	fmt.Println(f.Values.Dir)      // crab_task
//	fmt.Println(f.Values.Parallel) // 3
//
// # Tags
//
// The first element of the "flag" tag is the (long) name of the flag.
// If omitted (like `flag:",..."`), the name is the field name in lower-kebab-case.
//
// Attributes, all of them are optional:
//
// - short: short name of the flag.
//
// - help: help message for the flag.
//
// - metavar: metavar in explanation of the flag. If omitted, the default value of the field is used.
//
// # Panics
//
// - if v is not struct.
func New[T any](v T) *Flagger[T] {
	flgr := &Flagger[T]{Values: &v}

	rv := reflect.ValueOf(flgr.Values)
	if rv.Elem().Kind() != reflect.Struct {
		panic("flag receiver must be struct")
	}

	rt := rv.Elem().Type()
	flags := make([]Flag, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		tagFlag, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}

		flg := Flag{}
		attrs := strings.Split(tagFlag, ",")
		flg.Name, attrs = attrs[0], attrs[1:]
		if flg.Name == "" {
			flg.Name = kebab(f.Name)
		}

		for _, a := range attrs {
			name, value, _ := strings.Cut(a, "=")
			switch name {
			case "short":
				flg.ShortName = value
			case "help":
				flg.Help = value
			case "metavar":
				flg.MetaVar = value
			}
		}

		if _, ok := rv.Elem().Field(i).Interface().(flag.Value); ok {
			flg.ptr = rv.Elem().Field(i)
		} else {
			flg.ptr = rv.Elem().Field(i).Addr()
		}
		flags = append(flags, flg)
	}

	flgr.Flags = flags
	return flgr
}

func (f *Flagger[T]) SetFlags(fs *flag.FlagSet) (*flag.FlagSet, error) {
	for _, flag := range f.Flags {
		if err := flag.SetFlag(fs); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Names returns all flag names, long and short.
func (f *Flagger[T]) Names() []string {
	names := make([]string, 0, len(f.Flags))
	for _, flg := range f.Flags {
		names = append(names, flg.Name)
		if flg.ShortName != "" {
			names = append(names, flg.ShortName)
		}
	}
	return names
}

var reUpper *regexp.Regexp = regexp.MustCompile("[A-Z][^A-Z]*")

func kebab(field string) string {
	name := reUpper.ReplaceAllString(field, "-${0}")
	return strings.TrimPrefix(strings.ToLower(name), "-")
}

func (f *Flagger[T]) String() string {
	var strs []string
	for _, flag := range f.Flags {
		strs = append(strs, flag.String())
	}
	return strings.Join(strs, " ")
}
