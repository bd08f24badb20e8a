package flag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/opst/crabclient/pkg/lumi"
)

// Strings is a comma separated list. Repeating the flag appends.
type Strings []string

func (s *Strings) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(*s, ",")
}

func (s *Strings) Set(v string) error {
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		*s = append(*s, item)
	}
	return nil
}

var ErrQuantity = errors.New(`quantity should be a positive number or "all"`)

// Quantity is a number of items, or "all" of them.
//
// The zero value means "all", and refuses "0" given as a flag.
type Quantity struct {
	n         int
	zeroIsAll bool
}

// ZeroMeansAll is "all", and takes "0" given as a flag for "all" too.
func ZeroMeansAll() Quantity {
	return Quantity{zeroIsAll: true}
}

func QuantityOf(n int) Quantity {
	return Quantity{n: n}
}

func (q *Quantity) String() string {
	if q == nil || q.IsAll() {
		return "all"
	}
	return strconv.Itoa(q.n)
}

func (q *Quantity) Set(v string) error {
	if strings.EqualFold(v, "all") {
		q.n = 0
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || (n == 0 && !q.zeroIsAll) {
		return fmt.Errorf("%w: %q", ErrQuantity, v)
	}
	q.n = n
	return nil
}

func (q Quantity) IsAll() bool {
	return q.n <= 0
}

// Limit returns the number of items to take out of total.
func (q Quantity) Limit(total int) int {
	if q.IsAll() || total < q.n {
		return total
	}
	return q.n
}

// JobIDs is a set of job ids, written like "1,3-5".
type JobIDs []int

func (j *JobIDs) String() string {
	if j == nil {
		return ""
	}
	return lumi.FormatRunRange(*j)
}

func (j *JobIDs) Set(v string) error {
	ids, err := lumi.ParseRunRange(v)
	if err != nil {
		return err
	}
	*j = append(*j, ids...)
	return nil
}

// Strings formats ids one by one, in the order given.
func (j JobIDs) Strings() []string {
	ret := make([]string, 0, len(j))
	for _, id := range j {
		ret = append(ret, strconv.Itoa(id))
	}
	return ret
}

// OptionalInt is an integer flag which knows whether it is set.
type OptionalInt struct {
	v     int
	isSet bool
}

func (o *OptionalInt) String() string {
	if o == nil || !o.isSet {
		return ""
	}
	return strconv.Itoa(o.v)
}

func (o *OptionalInt) Set(v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	o.v = n
	o.isSet = true
	return nil
}

func (o *OptionalInt) Value() (int, bool) {
	if o == nil || !o.isSet {
		return 0, false
	}
	return o.v, true
}
