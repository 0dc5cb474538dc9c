package resources

import (
	"context"
	"net/url"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/domain"
)

// Client groups every collection the screens use
type Client struct {
	Farms            *Collection[domain.Farm]
	Animals          *Collection[domain.Animal]
	Workers          *Collection[domain.Worker]
	Tasks            *Collection[domain.Task]
	FeedingSchedules *Collection[domain.FeedingSchedule]
	HealthRecords    *Collection[domain.HealthRecord]
	Vaccinations     *Collection[domain.Vaccination]
	Treatments       *Collection[domain.Treatment]
	Loans            *Collection[domain.LoanApplication]
}

// NewClient creates collection clients over api
func NewClient(api API) *Client {
	return &Client{
		Farms:            NewCollection[domain.Farm](api, "/farms", "farms", "farm"),
		Animals:          NewCollection[domain.Animal](api, "/livestock/animals", "animals", "animal"),
		Workers:          NewCollection[domain.Worker](api, "/workers", "workers", "worker"),
		Tasks:            NewCollection[domain.Task](api, "/tasks", "tasks", "task"),
		FeedingSchedules: NewCollection[domain.FeedingSchedule](api, "/feeding-schedules", "schedules", "schedule"),
		HealthRecords:    NewCollection[domain.HealthRecord](api, "/health-records", "records", "record"),
		Vaccinations:     NewCollection[domain.Vaccination](api, "/vaccinations", "vaccinations", "vaccination"),
		Treatments:       NewCollection[domain.Treatment](api, "/treatments", "treatments", "treatment"),
		Loans:            NewCollection[domain.LoanApplication](api, "/loans", "loans", "loan"),
	}
}

// DashboardSummary holds record counts for a role's dashboard. Sections that
// failed for reasons other than a lost session are listed in Errors and the
// rest of the summary is still returned.
type DashboardSummary struct {
	Role   domain.Role
	FarmID domain.ID
	Counts map[string]int
	Errors map[string]string
}

// Sections returns the section names in display order
func (d DashboardSummary) Sections() []string {
	names := make([]string, 0, len(d.Counts)+len(d.Errors))
	for k := range d.Counts {
		names = append(names, k)
	}
	for k := range d.Errors {
		if _, ok := d.Counts[k]; !ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

type section struct {
	name string
	list func(ctx context.Context, q url.Values) (int, error)
}

func counter[T any](c *Collection[T]) func(ctx context.Context, q url.Values) (int, error) {
	return func(ctx context.Context, q url.Values) (int, error) {
		items, err := c.List(ctx, q)
		return len(items), err
	}
}

// sections lists what each role's dashboard shows
func (c *Client) sections(role domain.Role) []section {
	farms := section{"farms", counter(c.Farms)}
	animals := section{"animals", counter(c.Animals)}
	workers := section{"workers", counter(c.Workers)}
	tasks := section{"tasks", counter(c.Tasks)}
	feeding := section{"feedingSchedules", counter(c.FeedingSchedules)}
	health := section{"healthRecords", counter(c.HealthRecords)}
	vaccinations := section{"vaccinations", counter(c.Vaccinations)}
	treatments := section{"treatments", counter(c.Treatments)}
	loans := section{"loans", counter(c.Loans)}

	switch role {
	case domain.RoleFarmer:
		return []section{farms, animals, workers, tasks, feeding, loans}
	case domain.RoleVeterinarian:
		return []section{animals, health, vaccinations, treatments}
	case domain.RoleWorker:
		return []section{tasks, feeding}
	case domain.RoleLoanOfficer:
		return []section{loans, farms}
	case domain.RoleAdmin:
		return []section{farms, workers, loans}
	}
	return []section{farms}
}

// Dashboard fetches the role's sections concurrently. farmID, when set,
// scopes farm-level sections. A 401 aborts the remaining requests.
func (c *Client) Dashboard(ctx context.Context, role domain.Role, farmID domain.ID) (*DashboardSummary, error) {
	summary := &DashboardSummary{
		Role:   role,
		FarmID: farmID,
		Counts: make(map[string]int),
		Errors: make(map[string]string),
	}

	var q url.Values
	if farmID != "" {
		q = url.Values{"farmId": {farmID.String()}}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for _, s := range c.sections(role) {
		g.Go(func() error {
			n, err := s.list(gctx, q)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if apiclient.IsUnauthorized(err) {
					return err
				}
				log.Warn().Err(err).Str("section", s.name).Msg("dashboard section failed")
				summary.Errors[s.name] = apiclient.MessageOf(err, err.Error())
				return nil
			}
			summary.Counts[s.name] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}
