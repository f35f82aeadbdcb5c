package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Phoenix")
	if err != nil {
		panic(err)
	}
}

// force the timezone to Phoenix because our servers sometimes land on
// the east coast, which disturbs any date math based on
// <time.Time>.Year()/Month()/Day()/Hour()/... against portal deadlines
func Now() time.Time {
	return time.Now().In(Location)
}
