package game

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLedger(t *testing.T) {
	Convey("Given a ledger with a budget off the cent grid", t, func() {
		l := newLedger(10.005)

		Convey("A win debits exactly the price", func() {
			So(l.win("item_0", 12, 10), ShouldBeNil)
			res := l.result("a", nil, 0, false)
			So(res.BudgetSpent, ShouldEqual, 10.0)
			So(res.BudgetRemaining, ShouldEqual, 0.005)
			So(res.Utility, ShouldEqual, 2.0)
		})

		Convey("A price above the budget is refused and changes nothing", func() {
			err := l.win("item_0", 12, 10.01)
			So(errors.Is(err, ErrOverdraft), ShouldBeTrue)
			res := l.result("a", nil, 0, false)
			So(res.BudgetRemaining, ShouldEqual, 10.005)
			So(res.ItemsWon, ShouldBeEmpty)
			So(res.Utility, ShouldEqual, 0.0)
		})
	})
}
