package lonet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lonetwatch/lib/telemetry"
	"lonetwatch/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const loginPage = `<html><body>
<form action="/wws/100001.php?sid=194763"><input name="login_login"></form>
</body></html>`

const homePage = `<html><body>
<a href="/wws/profile.php">Profil</a>
<a href="/wws/class.php">Klasse 10d</a>
</body></html>`

const classPage = `<html><body>
<a id="link_learning_plan" href="/wws/plan.php">Lernplan</a>
</body></html>`

const planPage = `<html><body>
<select name="select_mapping">
	<option value="/wws/subject.php?id=1">Mathematik</option>
	<option value="/wws/subject.php?id=2">Deutsch</option>
</select>
</body></html>`

const mathPage = `<html><body>
<table class="table_list">
	<tr><th>#</th><th></th><th>Aufgabe</th><th>Termin</th></tr>
	<tr>
		<td>1</td><td></td>
		<td><a onclick="show_popup_panel('/wws/popup.php?id=7');">Buchvorstellung</a></td>
		<td>11.03.2021 14:30</td>
	</tr>
	<tr>
		<td>2</td><td></td>
		<td><a onclick="show_popup_panel('/wws/popup.php?id=8');">Wochenplan</a></td>
		<td></td>
	</tr>
</table>
</body></html>`

const deutschPage = `<html><body><p>Keine Inhalte vorhanden.</p></body></html>`

const popup7 = `<html><body>
<script>var popup = {"l1_link":"https:\/\/lo-net2.de\/wws\/task7.php"};</script>
<div class="panel"><p>Bearbeite die Aufgaben <b>3 und 4</b>.</p></div>
</body></html>`

const popup8 = `<html><body><p>nothing to see here</p></body></html>`

func fixtureServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/wws/100001.php", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fmt.Fprint(w, loginPage)
			return
		}
		err := r.ParseMultipartForm(1 << 20)
		require.NoError(t, err)
		require.Equal(t, "schueler.zehn", r.FormValue("login_login"))
		fmt.Fprint(w, homePage)
	})
	mux.HandleFunc("/wws/class.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, classPage)
	})
	mux.HandleFunc("/wws/plan.php", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, planPage)
	})
	mux.HandleFunc("/wws/subject.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "1" {
			fmt.Fprint(w, mathPage)
			return
		}
		fmt.Fprint(w, deutschPage)
	})
	mux.HandleFunc("/wws/popup.php", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "7" {
			fmt.Fprint(w, popup7)
			return
		}
		fmt.Fprint(w, popup8)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestCollectPlan(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:scrapers/lonet")
	defer cleanup()

	server := fixtureServer(t)
	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	plan, err := CollectPlan(ctx, client, CollectOptions{
		Username:  "schueler.zehn",
		Password:  "pw",
		ClassName: "10d",
	})
	require.NoError(t, err)
	require.Equal(t, "194763", client.Sid)

	expected := Plan{
		Subjects: []SubjectTasks{
			{
				Name: "Mathematik",
				Tasks: []Task{
					{
						Name:        "Buchvorstellung",
						Description: "Bearbeite die Aufgaben 3 und 4.",
						Deadline:    time.Date(2021, 3, 11, 14, 30, 0, 0, timezone.Location),
						Link:        "https://lo-net2.de/wws/task7.php",
					},
					{
						Name:        "Wochenplan",
						Description: noDescriptionPlaceholder,
					},
				},
			},
			{Name: "Deutsch"},
		},
	}
	if diff := cmp.Diff(expected, plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestCollectPlanMissingClassLink(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:scrapers/lonet")
	defer cleanup()

	server := fixtureServer(t)
	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	_, err = CollectPlan(context.Background(), client, CollectOptions{
		Username:  "schueler.zehn",
		Password:  "pw",
		ClassName: "11a",
	})
	require.ErrorIs(t, err, ErrMissingElement)
}

func TestLoginWithoutSessionId(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:scrapers/lonet")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body>Wartungsarbeiten</body></html>")
	}))
	defer server.Close()

	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	_, err = client.Login(context.Background(), "user", "pw")
	require.ErrorIs(t, err, ErrNoSessionId)
}

func TestPeekKeepsLocation(t *testing.T) {
	cleanup := telemetry.SetupForTesting("test:scrapers/lonet")
	defer cleanup()

	server := fixtureServer(t)
	client, err := NewClient(ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.Login(ctx, "schueler.zehn", "pw")
	require.NoError(t, err)
	before := client.Location().String()

	_, err = client.Peek(ctx, "/wws/plan.php")
	require.NoError(t, err)
	require.Equal(t, before, client.Location().String())

	_, err = client.Navigate(ctx, "/wws/class.php")
	require.NoError(t, err)
	require.NotEqual(t, before, client.Location().String())
}

func TestParseDeadlineLayouts(t *testing.T) {
	// corrected interpretation: day.month.year hour:minute
	corrected, err := parseDeadline(DeadlineLayout, "11.03.2021 14:30")
	require.NoError(t, err)
	require.Equal(t, time.Date(2021, 3, 11, 14, 30, 0, 0, timezone.Location), corrected)

	// legacy interpretation keeps the historic field mixup:
	// day.minute.year hour:second
	legacy, err := parseDeadline(LegacyDeadlineLayout, "11.03.2021 14:30")
	require.NoError(t, err)
	require.Equal(t, time.Date(2021, 1, 11, 14, 3, 30, 0, timezone.Location), legacy)
}
