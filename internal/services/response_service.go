package services

import (
	"context"
	"errors"
	"strings"

	"github.com/yoockh/dinedesk/internal/models"
	pgrepo "github.com/yoockh/dinedesk/internal/repositories/postgres"
	"github.com/yoockh/dinedesk/internal/responses"
	"github.com/yoockh/dinedesk/internal/utils"
)

type Personalization struct {
	RestaurantID string `json:"restaurant_id,omitempty"`
	CustomerID   string `json:"customer_id,omitempty"`
	Name         string `json:"name,omitempty"`
	VisitCount   int    `json:"visit_count,omitempty"`
}

type GenerateInput struct {
	Template        string           `json:"template"`
	Variables       map[string]any   `json:"variables"`
	Channel         models.Channel   `json:"channel,omitempty"`
	Personalization *Personalization `json:"personalization,omitempty"`
}

type ResponseService interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

type responseService struct {
	gen       *responses.Generator
	customers pgrepo.CustomerRepository
}

func NewResponseService(gen *responses.Generator, customers pgrepo.CustomerRepository) ResponseService {
	if gen == nil {
		gen = responses.MustNewGenerator()
	}
	return &responseService{gen: gen, customers: customers}
}

func (s *responseService) Generate(ctx context.Context, in GenerateInput) (string, error) {
	const op = "ResponseService.Generate"

	in.Template = strings.TrimSpace(in.Template)
	if in.Template == "" {
		return "", utils.ER(utils.CodeInvalidArgument, op, "missing_template", "template is required", nil)
	}
	if in.Channel != "" && !in.Channel.Valid() {
		return "", utils.ER(utils.CodeInvalidArgument, op, "invalid_channel", "unsupported channel: "+string(in.Channel), nil)
	}

	text, err := s.gen.Render(in.Template, in.Variables)
	if err != nil {
		return "", err
	}

	name, visits := "", 0
	if p := in.Personalization; p != nil {
		name, visits = p.Name, p.VisitCount
		if p.CustomerID != "" && p.RestaurantID != "" && s.customers != nil {
			c, err := s.customers.GetByID(ctx, p.RestaurantID, p.CustomerID)
			switch {
			case err == nil:
				name, visits = c.Name, c.VisitCount
			case errors.Is(err, utils.ErrNotFound):
				return "", utils.ER(utils.CodeNotFound, op, "unknown_customer", "customer not found", err)
			default:
				return "", utils.E(utils.CodeUnavailable, op, "failed to load customer", err)
			}
		}
		text = responses.Personalize(text, name, visits)
	}

	if in.Channel != "" {
		text = responses.Format(in.Channel, text, responses.FormatOptions{CustomerName: name})
	}
	return text, nil
}
