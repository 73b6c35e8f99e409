package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Berlin")
	if err != nil {
		panic(err)
	}
}

// force the timezone to Berlin because lo-net2 renders every deadline
// in German local time, no matter where this process happens to run
func Now() time.Time {
	return time.Now().In(Location)
}
