package testutil

import "github.com/roach88/tql/internal/schema"

// SalesSchema returns the snapshot shared by engine, CLI and harness tests:
//
//	vendas(id, valor, data, produto, regiao, status)
//	clientes(id, nome, cidade, criado_em)
//	estoque(produto, quantidade)
func SalesSchema() *schema.Snapshot {
	return schema.NewSnapshot(
		&schema.Entity{Name: "vendas", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeNumber},
			{Name: "valor", Type: schema.TypeNumber, Nullable: true},
			{Name: "data", Type: schema.TypeDate},
			{Name: "produto", Type: schema.TypeText},
			{Name: "regiao", Type: schema.TypeText},
			{Name: "status", Type: schema.TypeText},
		}},
		&schema.Entity{Name: "clientes", Fields: []schema.Field{
			{Name: "id", Type: schema.TypeNumber},
			{Name: "nome", Type: schema.TypeText},
			{Name: "cidade", Type: schema.TypeText},
			{Name: "criado_em", Type: schema.TypeDateTime},
		}},
		&schema.Entity{Name: "estoque", Fields: []schema.Field{
			{Name: "produto", Type: schema.TypeText},
			{Name: "quantidade", Type: schema.TypeNumber},
		}},
	)
}
